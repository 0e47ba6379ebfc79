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

package framer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"navlab.io/gnss/go-fusion/pkg/log"
)

const (
	// FusionSync0 and FusionSync1 form the two-byte preamble of a
	// FusionEngine message.
	FusionSync0 = 0x2E
	FusionSync1 = 0x31
	// FusionHeaderSize is the fixed size of the message header in bytes.
	FusionHeaderSize = 24
)

const (
	crcOffset   = 4 // CRC field position within the header
	crcCoverage = 8 // first byte covered by the CRC
)

// MessageHeader is the fixed FusionEngine message header. All fields are
// little-endian on the wire. The CRC covers every byte from the protocol
// version field through the end of the payload; the sync, reserved and
// CRC fields themselves are excluded.
type MessageHeader struct {
	CRC             uint32
	ProtocolVersion uint8
	MessageVersion  uint8
	MessageType     uint16
	SequenceNumber  uint32
	PayloadSize     uint32
	SourceID        uint32
}

// Decode parses a serialized header.
func (h *MessageHeader) Decode(buf []byte) error {
	if len(buf) < FusionHeaderSize {
		return errors.New(fmt.Sprintf("Header too short: %d bytes", len(buf)))
	}
	if buf[0] != FusionSync0 || buf[1] != FusionSync1 {
		return errors.New(fmt.Sprintf("Wrong sync bytes: %02x %02x", buf[0], buf[1]))
	}
	h.CRC = binary.LittleEndian.Uint32(buf[4:8])
	h.ProtocolVersion = buf[8]
	h.MessageVersion = buf[9]
	h.MessageType = binary.LittleEndian.Uint16(buf[10:12])
	h.SequenceNumber = binary.LittleEndian.Uint32(buf[12:16])
	h.PayloadSize = binary.LittleEndian.Uint32(buf[16:20])
	h.SourceID = binary.LittleEndian.Uint32(buf[20:24])
	return nil
}

// Serialize writes the header into buf, which must hold at least
// FusionHeaderSize bytes. The reserved bytes are zeroed and the CRC field
// is written as-is; see BuildMessage for computing it.
func (h *MessageHeader) Serialize(buf []byte) error {
	if len(buf) < FusionHeaderSize {
		return errors.New(fmt.Sprintf("Serialization buffer too short: %d bytes", len(buf)))
	}
	buf[0] = FusionSync0
	buf[1] = FusionSync1
	buf[2] = 0
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.CRC)
	buf[8] = h.ProtocolVersion
	buf[9] = h.MessageVersion
	binary.LittleEndian.PutUint16(buf[10:12], h.MessageType)
	binary.LittleEndian.PutUint32(buf[12:16], h.SequenceNumber)
	binary.LittleEndian.PutUint32(buf[16:20], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[20:24], h.SourceID)
	return nil
}

// FusionCRC computes the header CRC over a serialized message. The CRC
// covers everything after the CRC field itself, from the protocol
// version byte through the end of the payload.
func FusionCRC(frame []byte) uint32 {
	return crc32.ChecksumIEEE(frame[crcCoverage:])
}

// BuildMessage serializes a complete FusionEngine message. The header's
// payload size and CRC fields are computed from the payload; the
// remaining header fields are taken from h unchanged.
func BuildMessage(h MessageHeader, payload []byte) []byte {
	h.PayloadSize = uint32(len(payload))
	buf := make([]byte, FusionHeaderSize+len(payload))
	h.Serialize(buf)
	copy(buf[FusionHeaderSize:], payload)
	binary.LittleEndian.PutUint32(buf[crcOffset:], FusionCRC(buf))
	return buf
}

// MessageCallback receives every validated message. The header is a copy;
// the payload slice points into the framing buffer and is only valid for
// the duration of the call. Callbacks must not call back into the framer.
type MessageCallback func(header MessageHeader, payload []byte)

type fusionState int

const (
	fusionSync0 fusionState = iota
	fusionSync1
	fusionHeader
	fusionData
)

// FusionFramer extracts FusionEngine messages from a byte stream.
type FusionFramer struct {
	stream
	state       fusionState
	msgSize     int
	callback    MessageCallback
	warnOnError bool
}

var _ machine = &FusionFramer{}

// NewFusionFramer returns a framer with an owned buffer of the given
// capacity. The capacity bounds the largest message (header plus payload)
// the framer can accept; messages declaring a larger payload are
// discarded. A capacity below FusionHeaderSize leaves the framer inert.
func NewFusionFramer(capacity int) *FusionFramer {
	f := &FusionFramer{warnOnError: true}
	f.m = f
	var buf []byte
	if capacity > 0 {
		buf = make([]byte, capacity)
	}
	f.setBuffer(buf, FusionHeaderSize)
	return f
}

// SetBuffer replaces the framing storage with caller-owned memory and
// resets the framer. A buffer below FusionHeaderSize leaves the framer
// inert.
func (f *FusionFramer) SetBuffer(buf []byte) {
	f.setBuffer(buf, FusionHeaderSize)
}

// SetCallback registers the message callback, replacing any previous one.
// A nil callback disables dispatch; messages are still validated and
// counted against the OnData return value.
func (f *FusionFramer) SetCallback(callback MessageCallback) {
	f.callback = callback
}

// SetWarnOnError controls warning logs for CRC mismatches and oversized
// messages. Failures hit during resynchronization are never logged.
func (f *FusionFramer) SetWarnOnError(enabled bool) {
	f.warnOnError = enabled
}

func (f *FusionFramer) syncByte() byte {
	return FusionSync0
}

func (f *FusionFramer) resetParse() {
	f.state = fusionSync0
	f.msgSize = 0
}

func (f *FusionFramer) onByte(quiet bool) int {
	b := f.buf[f.next-1]
	switch f.state {
	case fusionSync0:
		if b == FusionSync0 {
			f.state = fusionSync1
		} else {
			f.next = 0
		}
	case fusionSync1:
		switch b {
		case FusionSync0:
			// New sync candidate; the byte collapses onto the one at
			// offset 0 and the cursor rewinds behind it.
			f.next = 1
		case FusionSync1:
			f.state = fusionHeader
		default:
			f.state = fusionSync0
			f.next = 0
		}
	case fusionHeader:
		if f.next < FusionHeaderSize {
			break
		}
		payloadSize := int(binary.LittleEndian.Uint32(f.buf[16:20]))
		if payloadSize > len(f.buf)-FusionHeaderSize {
			if !quiet && f.warnOnError {
				messageType := binary.LittleEndian.Uint16(f.buf[10:12])
				log.Warning("Message payload too large: type=%d payload=%d B capacity=%d B",
					messageType, payloadSize, len(f.buf))
			}
			f.state = fusionSync0
			return -1
		}
		f.msgSize = FusionHeaderSize + payloadSize
		if payloadSize == 0 {
			return f.checkMessage(quiet)
		}
		f.state = fusionData
	case fusionData:
		if f.next == f.msgSize {
			return f.checkMessage(quiet)
		}
	}
	return 0
}

// checkMessage validates the CRC of the collected message and dispatches
// it. Returns the message size on success and -1 on mismatch, leaving the
// buffered bytes in place for resynchronization.
func (f *FusionFramer) checkMessage(quiet bool) int {
	size := f.msgSize
	f.state = fusionSync0
	f.msgSize = 0
	var header MessageHeader
	if err := header.Decode(f.buf[:FusionHeaderSize]); err != nil {
		log.Error("Dropping unreadable message: %s", err)
		f.Reset()
		return -1
	}
	computed := FusionCRC(f.buf[:size])
	if computed != header.CRC {
		if !quiet && f.warnOnError {
			log.Warning("CRC mismatch: type=%d seq=%d expected=%08x computed=%08x",
				header.MessageType, header.SequenceNumber, header.CRC, computed)
		}
		return -1
	}
	if f.callback != nil {
		f.callback(header, f.buf[FusionHeaderSize:size])
	}
	f.next = 0
	return size
}
