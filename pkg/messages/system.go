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

package messages

import (
	"encoding/binary"
	"errors"
	"fmt"

	"sigs.k8s.io/yaml"
)

// VersionInfo reports the software and hardware versions of the sending
// device. The wire format carries four length-prefixed strings after a
// fixed prologue.
type VersionInfo struct {
	SystemTimeNS    int64  `json:"system_time_ns"`
	FirmwareVersion string `json:"firmware_version"`
	EngineVersion   string `json:"engine_version"`
	HardwareVersion string `json:"hardware_version"`
	ReceiverVersion string `json:"receiver_version"`
}

const versionInfoFixedSize = 16

func (v *VersionInfo) Type() MessageType {
	return MessageTypeVersionInfo
}

func (v *VersionInfo) Version() uint8 {
	return 0
}

func (v *VersionInfo) Serialize() ([]byte, error) {
	parts := []string{v.FirmwareVersion, v.EngineVersion, v.HardwareVersion, v.ReceiverVersion}
	total := versionInfoFixedSize
	for _, s := range parts {
		if len(s) > 255 {
			return nil, errors.New(fmt.Sprintf("Version string too long: %d bytes", len(s)))
		}
		total += len(s)
	}
	buf := make([]byte, total)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(v.SystemTimeNS))
	offset := versionInfoFixedSize
	for i, s := range parts {
		buf[8+i] = uint8(len(s))
		copy(buf[offset:], s)
		offset += len(s)
	}
	return buf, nil
}

func (v *VersionInfo) Decode(buf []byte) error {
	if len(buf) < versionInfoFixedSize {
		return errors.New(fmt.Sprintf("VersionInfo payload too short: %d bytes", len(buf)))
	}
	v.SystemTimeNS = int64(binary.LittleEndian.Uint64(buf[0:8]))
	offset := versionInfoFixedSize
	parts := make([]string, 4)
	for i := range parts {
		length := int(buf[8+i])
		if offset+length > len(buf) {
			return errors.New(fmt.Sprintf("VersionInfo string %d overruns payload", i))
		}
		parts[i] = string(buf[offset : offset+length])
		offset += length
	}
	v.FirmwareVersion, v.EngineVersion, v.HardwareVersion, v.ReceiverVersion = parts[0], parts[1], parts[2], parts[3]
	return nil
}

func (v *VersionInfo) String() string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

type EventType uint8

const (
	EventTypeLog             EventType = 0
	EventTypeReset           EventType = 1
	EventTypeConfigChange    EventType = 2
	EventTypeCommand         EventType = 3
	EventTypeCommandResponse EventType = 4
)

var eventTypeNames = map[EventType]string{
	EventTypeLog:             "Log",
	EventTypeReset:           "Reset",
	EventTypeConfigChange:    "ConfigChange",
	EventTypeCommand:         "Command",
	EventTypeCommandResponse: "CommandResponse",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(t))
}

// EventNotification is an asynchronous device event with free-form
// description text.
type EventNotification struct {
	EventType    EventType `json:"event_type"`
	SystemTimeNS int64     `json:"system_time_ns"`
	EventFlags   uint64    `json:"event_flags"`
	Description  string    `json:"description"`
}

const eventNotificationFixedSize = 24

func (e *EventNotification) Type() MessageType {
	return MessageTypeEventNotification
}

func (e *EventNotification) Version() uint8 {
	return 0
}

func (e *EventNotification) Serialize() ([]byte, error) {
	if len(e.Description) > 0xFFFF {
		return nil, errors.New(fmt.Sprintf("Event description too long: %d bytes", len(e.Description)))
	}
	buf := make([]byte, eventNotificationFixedSize+len(e.Description))
	buf[0] = uint8(e.EventType)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(e.SystemTimeNS))
	binary.LittleEndian.PutUint64(buf[12:20], e.EventFlags)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(e.Description)))
	copy(buf[eventNotificationFixedSize:], e.Description)
	return buf, nil
}

func (e *EventNotification) Decode(buf []byte) error {
	if len(buf) < eventNotificationFixedSize {
		return errors.New(fmt.Sprintf("EventNotification payload too short: %d bytes", len(buf)))
	}
	e.EventType = EventType(buf[0])
	e.SystemTimeNS = int64(binary.LittleEndian.Uint64(buf[4:12]))
	e.EventFlags = binary.LittleEndian.Uint64(buf[12:20])
	length := int(binary.LittleEndian.Uint16(buf[20:22]))
	if eventNotificationFixedSize+length > len(buf) {
		return errors.New("Event description overruns payload")
	}
	e.Description = string(buf[eventNotificationFixedSize : eventNotificationFixedSize+length])
	return nil
}

func (e *EventNotification) String() string {
	out, err := yaml.Marshal(e)
	if err != nil {
		return err.Error()
	}
	return string(out)
}

type ResponseStatus uint8

const (
	ResponseOK                ResponseStatus = 0
	ResponseUnsupported       ResponseStatus = 1
	ResponseValueError        ResponseStatus = 2
	ResponseInsufficientSpace ResponseStatus = 3
	ResponseExecutionFailure  ResponseStatus = 4
	ResponseInconsistentState ResponseStatus = 5
)

var responseStatusNames = map[ResponseStatus]string{
	ResponseOK:                "OK",
	ResponseUnsupported:       "Unsupported",
	ResponseValueError:        "ValueError",
	ResponseInsufficientSpace: "InsufficientSpace",
	ResponseExecutionFailure:  "ExecutionFailure",
	ResponseInconsistentState: "InconsistentState",
}

func (s ResponseStatus) String() string {
	if name, ok := responseStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// CommandResponseSize is the serialized size of a CommandResponse.
const CommandResponseSize = 8

// CommandResponse acknowledges a command message, echoing its sequence
// number.
type CommandResponse struct {
	SourceSequenceNumber uint32         `json:"source_sequence_number"`
	Response             ResponseStatus `json:"response"`
}

func (c *CommandResponse) Type() MessageType {
	return MessageTypeCommandResponse
}

func (c *CommandResponse) Version() uint8 {
	return 0
}

func (c *CommandResponse) Serialize() ([]byte, error) {
	buf := make([]byte, CommandResponseSize)
	binary.LittleEndian.PutUint32(buf[0:4], c.SourceSequenceNumber)
	buf[4] = uint8(c.Response)
	return buf, nil
}

func (c *CommandResponse) Decode(buf []byte) error {
	if len(buf) < CommandResponseSize {
		return errors.New(fmt.Sprintf("CommandResponse payload too short: %d bytes", len(buf)))
	}
	c.SourceSequenceNumber = binary.LittleEndian.Uint32(buf[0:4])
	c.Response = ResponseStatus(buf[4])
	return nil
}

// MessageRequestSize is the serialized size of a MessageRequest.
const MessageRequestSize = 4

// MessageRequest asks the device to emit one message of the requested
// type, typically VersionInfo.
type MessageRequest struct {
	RequestedType MessageType `json:"requested_type"`
}

func (m *MessageRequest) Type() MessageType {
	return MessageTypeMessageRequest
}

func (m *MessageRequest) Version() uint8 {
	return 0
}

func (m *MessageRequest) Serialize() ([]byte, error) {
	buf := make([]byte, MessageRequestSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(m.RequestedType))
	return buf, nil
}

func (m *MessageRequest) Decode(buf []byte) error {
	if len(buf) < MessageRequestSize {
		return errors.New(fmt.Sprintf("MessageRequest payload too short: %d bytes", len(buf)))
	}
	m.RequestedType = MessageType(binary.LittleEndian.Uint16(buf[0:2]))
	return nil
}

// Reset masks select which parts of the navigation engine restart. The
// aggregate masks mirror the receiver's hot, warm, cold and factory
// start levels.
const (
	ResetRestartNavigationEngine = 0x00000001
	ResetGNSSCorrections         = 0x00000002
	ResetHotStart                = 0x000000FF
	ResetWarmStart               = 0x000001FF
	ResetColdStart               = 0x00000FFF
	ResetFactory                 = 0xFFFFFFFF
)

// ResetSize is the serialized size of a Reset.
const ResetSize = 4

// Reset commands the device to restart the selected subsystems.
type Reset struct {
	Mask uint32 `json:"mask"`
}

func (r *Reset) Type() MessageType {
	return MessageTypeReset
}

func (r *Reset) Version() uint8 {
	return 0
}

func (r *Reset) Serialize() ([]byte, error) {
	buf := make([]byte, ResetSize)
	binary.LittleEndian.PutUint32(buf[0:4], r.Mask)
	return buf, nil
}

func (r *Reset) Decode(buf []byte) error {
	if len(buf) < ResetSize {
		return errors.New(fmt.Sprintf("Reset payload too short: %d bytes", len(buf)))
	}
	r.Mask = binary.LittleEndian.Uint32(buf[0:4])
	return nil
}
