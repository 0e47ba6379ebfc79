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

	"navlab.io/gnss/go-fusion/pkg/crc24q"
	"navlab.io/gnss/go-fusion/pkg/log"
)

const (
	// RTCMPreamble is the single-byte preamble of an RTCM 10403 frame.
	RTCMPreamble = 0xD3
	// RTCMHeaderSize covers the preamble plus the 10-bit length field.
	RTCMHeaderSize = 3
	// RTCMMaxPayloadSize is the largest payload the 10-bit length field
	// can declare.
	RTCMMaxPayloadSize = 1023
	// RTCMMaxFrameSize bounds a complete frame including the CRC trailer.
	RTCMMaxFrameSize = RTCMHeaderSize + RTCMMaxPayloadSize + crc24q.Size
)

// RTCMMessageType extracts the message number from a complete frame: the
// top 12 bits of the first two payload bytes. Frames whose payload is too
// short to carry a type field report 0.
func RTCMMessageType(frame []byte) uint16 {
	if len(frame) < RTCMHeaderSize+2 {
		return 0
	}
	payloadSize := binary.BigEndian.Uint16(frame[1:3]) & 0x03FF
	if payloadSize < 2 {
		return 0
	}
	return binary.BigEndian.Uint16(frame[RTCMHeaderSize:RTCMHeaderSize+2]) >> 4
}

// BuildRTCMFrame wraps payload in an RTCM frame: preamble, big-endian
// 10-bit length, payload, CRC-24Q trailer.
func BuildRTCMFrame(payload []byte) ([]byte, error) {
	if len(payload) > RTCMMaxPayloadSize {
		return nil, errors.New(fmt.Sprintf("Payload too large for an RTCM frame: %d bytes", len(payload)))
	}
	buf := make([]byte, RTCMHeaderSize+len(payload)+crc24q.Size)
	buf[0] = RTCMPreamble
	binary.BigEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[RTCMHeaderSize:], payload)
	crc := crc24q.Checksum(buf[:RTCMHeaderSize+len(payload)])
	buf[len(buf)-3] = byte(crc >> 16)
	buf[len(buf)-2] = byte(crc >> 8)
	buf[len(buf)-1] = byte(crc)
	return buf, nil
}

// RTCMMessageCallback receives every validated frame: the message number
// and the raw frame bytes including header and CRC trailer. The slice
// points into the framing buffer and is only valid for the duration of
// the call. Callbacks must not call back into the framer.
type RTCMMessageCallback func(messageType uint16, frame []byte)

type rtcmState int

const (
	rtcmSync rtcmState = iota
	rtcmHeader
	rtcmData
)

// RTCMFramer extracts RTCM 10403 frames from a byte stream.
type RTCMFramer struct {
	stream
	state        rtcmState
	msgSize      int
	callback     RTCMMessageCallback
	warnOnError  bool
	decodedCount uint64
	errorCount   uint64
}

var _ machine = &RTCMFramer{}

// NewRTCMFramer returns a framer with an owned buffer of the given
// capacity. Frames larger than the capacity or than RTCMMaxFrameSize are
// discarded. A capacity too small for an empty frame leaves the framer
// inert.
func NewRTCMFramer(capacity int) *RTCMFramer {
	f := &RTCMFramer{warnOnError: true}
	f.m = f
	var buf []byte
	if capacity > 0 {
		buf = make([]byte, capacity)
	}
	f.setBuffer(buf, RTCMHeaderSize+crc24q.Size)
	return f
}

// SetBuffer replaces the framing storage with caller-owned memory and
// resets the framer. A buffer too small for an empty frame leaves the
// framer inert.
func (f *RTCMFramer) SetBuffer(buf []byte) {
	f.setBuffer(buf, RTCMHeaderSize+crc24q.Size)
}

// SetCallback registers the frame callback, replacing any previous one.
// A nil callback disables dispatch; frames are still validated and
// counted.
func (f *RTCMFramer) SetCallback(callback RTCMMessageCallback) {
	f.callback = callback
}

// SetWarnOnError controls warning logs for CRC mismatches and oversized
// frames. Failures hit during resynchronization are never logged.
func (f *RTCMFramer) SetWarnOnError(enabled bool) {
	f.warnOnError = enabled
}

// DecodedMessageCount returns the number of valid frames dispatched since
// the framer was created.
func (f *RTCMFramer) DecodedMessageCount() uint64 {
	return f.decodedCount
}

// ErrorCount returns the number of framing failures, CRC mismatches and
// impossible lengths alike, including those hit while resynchronizing.
func (f *RTCMFramer) ErrorCount() uint64 {
	return f.errorCount
}

func (f *RTCMFramer) syncByte() byte {
	return RTCMPreamble
}

func (f *RTCMFramer) resetParse() {
	f.state = rtcmSync
	f.msgSize = 0
}

func (f *RTCMFramer) onByte(quiet bool) int {
	b := f.buf[f.next-1]
	switch f.state {
	case rtcmSync:
		if b == RTCMPreamble {
			f.state = rtcmHeader
		} else {
			f.next = 0
		}
	case rtcmHeader:
		if f.next < RTCMHeaderSize {
			break
		}
		payloadSize := int(binary.BigEndian.Uint16(f.buf[1:3]) & 0x03FF)
		size := RTCMHeaderSize + payloadSize + crc24q.Size
		maxSize := len(f.buf)
		if maxSize > RTCMMaxFrameSize {
			maxSize = RTCMMaxFrameSize
		}
		if size > maxSize {
			f.errorCount++
			if !quiet && f.warnOnError {
				log.Warning("RTCM frame too large: %d B, capacity %d B", size, maxSize)
			}
			f.state = rtcmSync
			return -1
		}
		f.msgSize = size
		f.state = rtcmData
	case rtcmData:
		if f.next == f.msgSize {
			return f.checkFrame(quiet)
		}
	}
	return 0
}

// checkFrame validates the CRC trailer of the collected frame and
// dispatches it. Returns the frame size on success and -1 on mismatch,
// leaving the buffered bytes in place for resynchronization.
func (f *RTCMFramer) checkFrame(quiet bool) int {
	size := f.msgSize
	f.state = rtcmSync
	f.msgSize = 0
	expected := uint32(f.buf[size-3])<<16 | uint32(f.buf[size-2])<<8 | uint32(f.buf[size-1])
	computed := crc24q.Checksum(f.buf[:size-crc24q.Size])
	if computed != expected {
		f.errorCount++
		if !quiet && f.warnOnError {
			log.Warning("RTCM CRC mismatch: type=%d expected=%06x computed=%06x",
				RTCMMessageType(f.buf[:size]), expected, computed)
		}
		return -1
	}
	f.decodedCount++
	if f.callback != nil {
		f.callback(RTCMMessageType(f.buf[:size]), f.buf[:size])
	}
	f.next = 0
	return size
}
