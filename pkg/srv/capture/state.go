/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.etcd.io/bbolt"
	"sigs.k8s.io/yaml"

	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/log"
)

const (
	BucketPrefix   = "stream_"
	StreamStateKey = "stream_state"
	VersionKey     = "version_info"
	HeadersKey     = "last_headers"
)

// StreamState is the per-receiver decoding state persisted across runs.
type StreamState struct {
	LastSequence   uint32 `json:"last_sequence"`
	FusionMessages uint64 `json:"fusion_messages"`
	FusionBytes    uint64 `json:"fusion_bytes"`
	RTCMMessages   uint64 `json:"rtcm_messages"`
	RTCMErrors     uint64 `json:"rtcm_errors"`
	BytesReceived  uint64 `json:"bytes_received"`
	SequenceGaps   uint64 `json:"sequence_gaps"`
	UpdatedAt      uint64 `json:"updated_at"`
}

type State struct {
	context.Context
	DB *bbolt.DB
}

func NewState(ctx context.Context, cfg *config.Config) (*State, error) {
	// open stream state database
	db, err := bbolt.Open(cfg.DBPath, 0600, nil)
	if err != nil {
		return nil, err
	}
	// create buckets in the database for all receivers
	if err = db.Update(func(tx *bbolt.Tx) error {
		for _, receiver := range cfg.Receivers {
			_, err = tx.CreateBucketIfNotExists([]byte(bucketName(receiver.Name)))
			if err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &State{
		Context: ctx,
		DB:      db,
	}, nil
}

func bucketName(receiverName string) string {
	return fmt.Sprintf("%s%s", BucketPrefix, receiverName)
}

// Close ...
func (s *State) Close() {
	s.DB.Close()
}

// SetStreamState ...
func (s *State) SetStreamState(receiverName string, state *StreamState) error {
	log.Debug("Persisting stream state: receiver: %s sequence: %d", receiverName, state.LastSequence)
	if err := s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		stateBytes, err := yaml.Marshal(state)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(StreamStateKey), stateBytes); err != nil {
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	return nil
}

// GetStreamState returns the persisted state for a receiver. A receiver
// that was never seen reports a zero state.
func (s *State) GetStreamState(receiverName string) (*StreamState, error) {
	state := &StreamState{}
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		stateBytes := b.Get([]byte(StreamStateKey))
		if stateBytes == nil {
			return nil
		}
		return yaml.Unmarshal(stateBytes, state)
	}); err != nil {
		return nil, err
	}
	return state, nil
}

// GetAllStreamStates ...
func (s *State) GetAllStreamStates() (map[string]*StreamState, error) {
	log.Debug("Getting all stream states")
	states := make(map[string]*StreamState)
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if !strings.HasPrefix(string(name), BucketPrefix) {
				return nil
			}
			stateBytes := b.Get([]byte(StreamStateKey))
			if stateBytes == nil {
				return nil
			}
			state := &StreamState{}
			if err := yaml.Unmarshal(stateBytes, state); err != nil {
				log.Error("Error while unmarshalling stream state: %s", err)
				return err
			}
			states[strings.TrimPrefix(string(name), BucketPrefix)] = state
			return nil
		})
	}); err != nil {
		return nil, err
	}
	return states, nil
}

// SetLastHeaders persists the last seen message header per message type.
func (s *State) SetLastHeaders(receiverName string, headers map[string]framer.MessageHeader) error {
	if err := s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		headerBytes, err := yaml.Marshal(headers)
		if err != nil {
			return err
		}
		return b.Put([]byte(HeadersKey), headerBytes)
	}); err != nil {
		return err
	}
	return nil
}

// GetLastHeaders returns the last seen message header per message type,
// an empty map for a receiver that never produced a message.
func (s *State) GetLastHeaders(receiverName string) (map[string]framer.MessageHeader, error) {
	headers := make(map[string]framer.MessageHeader)
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		headerBytes := b.Get([]byte(HeadersKey))
		if headerBytes == nil {
			return nil
		}
		return yaml.Unmarshal(headerBytes, &headers)
	}); err != nil {
		return nil, err
	}
	return headers, nil
}

// SetVersionInfo stores the last version report a receiver sent.
func (s *State) SetVersionInfo(receiverName string, version []byte) error {
	if err := s.DB.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		return b.Put([]byte(VersionKey), version)
	}); err != nil {
		return err
	}
	return nil
}

// GetVersionInfo returns the last stored version report, nil if the
// receiver never answered a version request.
func (s *State) GetVersionInfo(receiverName string) ([]byte, error) {
	var version []byte
	if err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName(receiverName)))
		if b == nil {
			return errors.New(fmt.Sprintf("Bucket not found: %s", bucketName(receiverName)))
		}
		stored := b.Get([]byte(VersionKey))
		if stored != nil {
			version = append([]byte(nil), stored...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return version, nil
}
