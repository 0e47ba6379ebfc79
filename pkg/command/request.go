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

package command

import (
	"net"
	"time"

	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/messages"
)

const requestBufferSize = 65536

// RequestReceiverVersion dials a receiver directly, asks for a version
// report and frames the stream until the report shows up. The deadline
// covers the whole exchange; other messages arriving in between are
// skipped.
func RequestReceiverVersion(cfg *config.Config, receiverName string, timeout time.Duration) (*messages.VersionInfo, error) {
	receiver := cfg.GetReceiverByName(receiverName)
	if receiver == nil {
		return nil, config.ErrReceiverNotFound{Name: receiverName}
	}

	conn, err := net.DialTimeout(receiver.Transport, receiver.Addr(), timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	frame, err := messages.BuildFrame(0, &messages.MessageRequest{RequestedType: messages.MessageTypeVersionInfo})
	if err != nil {
		return nil, err
	}
	if _, err := conn.Write(frame); err != nil {
		return nil, err
	}

	var version *messages.VersionInfo
	f := framer.NewFusionFramer(requestBufferSize)
	f.SetCallback(func(header framer.MessageHeader, payload []byte) {
		if messages.MessageType(header.MessageType) != messages.MessageTypeVersionInfo {
			return
		}
		decoded, decodeErr := messages.Decode(header, payload)
		if decodeErr != nil {
			return
		}
		version = decoded.(*messages.VersionInfo)
	})

	chunk := make([]byte, 4096)
	for version == nil {
		length, readErr := conn.Read(chunk)
		if length > 0 {
			f.OnData(chunk[:length])
		}
		if readErr != nil {
			return nil, readErr
		}
	}
	return version, nil
}
