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

// Package messages defines the FusionEngine message catalog and typed
// codecs for the payloads the capture tooling understands. All payloads
// are little-endian with fixed field offsets; anything not covered here
// is carried through the pipeline as opaque bytes.
package messages

import (
	"errors"
	"fmt"

	"navlab.io/gnss/go-fusion/pkg/framer"
)

// ProtocolVersion is stamped into the header of every built message.
const ProtocolVersion = 2

type MessageType uint16

const (
	MessageTypeInvalid MessageType = 0

	// Navigation solution messages.
	MessageTypePose                MessageType = 10000
	MessageTypeGNSSInfo            MessageType = 10001
	MessageTypeGNSSSatellite       MessageType = 10002
	MessageTypePoseAux             MessageType = 10003
	MessageTypeCalibrationStatus   MessageType = 10004
	MessageTypeRelativeENUPosition MessageType = 10005

	// Correction transport messages.
	MessageTypeLBandFrame MessageType = 10200

	// Command and control messages.
	MessageTypeCommandResponse   MessageType = 13000
	MessageTypeMessageRequest    MessageType = 13001
	MessageTypeReset             MessageType = 13002
	MessageTypeVersionInfo       MessageType = 13003
	MessageTypeEventNotification MessageType = 13004
)

var messageTypeNames = map[MessageType]string{
	MessageTypeInvalid:             "Invalid",
	MessageTypePose:                "Pose",
	MessageTypeGNSSInfo:            "GNSSInfo",
	MessageTypeGNSSSatellite:       "GNSSSatellite",
	MessageTypePoseAux:             "PoseAux",
	MessageTypeCalibrationStatus:   "CalibrationStatus",
	MessageTypeRelativeENUPosition: "RelativeENUPosition",
	MessageTypeLBandFrame:          "LBandFrame",
	MessageTypeCommandResponse:     "CommandResponse",
	MessageTypeMessageRequest:      "MessageRequest",
	MessageTypeReset:               "Reset",
	MessageTypeVersionInfo:         "VersionInfo",
	MessageTypeEventNotification:   "EventNotification",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint16(t))
}

// Timestamp is a FusionEngine time value: whole seconds plus a
// sub-second fraction in nanoseconds. A seconds field of all ones marks
// an unavailable time.
type Timestamp struct {
	Seconds    uint32 `json:"seconds"`
	FractionNS uint32 `json:"fraction_ns"`
}

const invalidTimeSeconds = 0xFFFFFFFF

func (t Timestamp) Valid() bool {
	return t.Seconds != invalidTimeSeconds
}

func (t Timestamp) String() string {
	if !t.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%d.%09d", t.Seconds, t.FractionNS)
}

// Payload is implemented by every typed message payload.
type Payload interface {
	Type() MessageType
	Version() uint8
	Serialize() ([]byte, error)
	Decode(buf []byte) error
}

// BuildFrame serializes a payload into a complete FusionEngine message
// ready for the wire.
func BuildFrame(seq uint32, p Payload) ([]byte, error) {
	body, err := p.Serialize()
	if err != nil {
		return nil, err
	}
	return framer.BuildMessage(framer.MessageHeader{
		ProtocolVersion: ProtocolVersion,
		MessageVersion:  p.Version(),
		MessageType:     uint16(p.Type()),
		SequenceNumber:  seq,
	}, body), nil
}

// Decode returns the typed payload for a framed message, or an error for
// message types without a codec.
func Decode(header framer.MessageHeader, payload []byte) (Payload, error) {
	var p Payload
	switch MessageType(header.MessageType) {
	case MessageTypePose:
		p = &Pose{}
	case MessageTypeLBandFrame:
		p = &LBandFrame{}
	case MessageTypeCommandResponse:
		p = &CommandResponse{}
	case MessageTypeMessageRequest:
		p = &MessageRequest{}
	case MessageTypeReset:
		p = &Reset{}
	case MessageTypeVersionInfo:
		p = &VersionInfo{}
	case MessageTypeEventNotification:
		p = &EventNotification{}
	default:
		return nil, errors.New(fmt.Sprintf("No codec for message type %s", MessageType(header.MessageType)))
	}
	if err := p.Decode(payload); err != nil {
		return nil, err
	}
	return p, nil
}
