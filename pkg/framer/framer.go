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

// Package framer extracts discrete, checksum-validated messages from
// continuous byte streams. Two framers are provided, one for the
// FusionEngine protocol and one for RTCM 10403, sharing a single
// scan/collect/resynchronize engine. Framers are not safe for concurrent
// use and must not be re-entered from their own callbacks.
package framer

import (
	"navlab.io/gnss/go-fusion/pkg/log"
)

// machine is the protocol-specific half of a framer: the sync byte that
// starts a frame, the per-byte parser step, and a parse-state reset.
// onByte examines the newest buffered byte and returns 0 while a message
// is incomplete, the message size in bytes once one has been validated
// and dispatched, or a negative value when the current candidate must be
// abandoned (CRC mismatch, impossible length). Abandoning keeps the
// buffered bytes in place so that resynchronization can scan them.
type machine interface {
	syncByte() byte
	onByte(quiet bool) int
	resetParse()
}

// stream owns the framing buffer and drives a machine over incoming
// bytes. It is embedded by both framers.
type stream struct {
	m    machine
	buf  []byte
	next int
}

// setBuffer installs storage for message collection. A buffer smaller
// than min leaves the framer inert: OnData consumes nothing until a
// usable buffer is installed.
func (s *stream) setBuffer(buf []byte, min int) {
	if len(buf) < min {
		log.Error("Framing buffer too small: %d bytes, need at least %d", len(buf), min)
		s.buf = nil
	} else {
		s.buf = buf
	}
	s.next = 0
	s.m.resetParse()
}

// Reset discards all in-flight framing state. Buffered bytes are dropped
// and the parser returns to sync search.
func (s *stream) Reset() {
	s.next = 0
	s.m.resetParse()
}

// OnData feeds data into the framer, invoking the message callback for
// every complete, valid message found. It returns the total size in bytes
// of the messages dispatched during the call, including any recovered by
// resynchronization. Messages may span OnData calls; incomplete bytes
// stay buffered.
func (s *stream) OnData(data []byte) int {
	if s.buf == nil {
		return 0
	}
	framed := 0
	for _, b := range data {
		if s.next >= len(s.buf) {
			log.Error("Framing state inconsistent at byte %d, resetting", s.next)
			s.Reset()
		}
		s.buf[s.next] = b
		s.next++
		if ret := s.m.onByte(false); ret > 0 {
			framed += ret
		} else if ret < 0 && s.next > 0 {
			framed += s.resync()
		}
	}
	return framed
}

// resync recovers from a false sync lock. The bytes left in the buffer by
// a failed parse may still contain zero or more genuine messages starting
// after byte 0, so each later occurrence of the sync byte is tried as a
// candidate start: the candidate is shifted to the front of the buffer
// and replayed through the parser in quiet mode. A validated message is
// counted and the scan continues behind it; a failed candidate forfeits
// its sync byte and the scan moves on; a candidate that runs out of bytes
// mid-message is left buffered, parse state intact, for the next OnData
// call to finish. Returns the total size of the messages reclaimed.
func (s *stream) resync() int {
	avail := s.next
	sync := s.m.syncByte()
	s.next = 0
	s.m.resetParse()
	reclaimed := 0
	offset := 1
	for offset < avail {
		if s.buf[offset] != sync {
			offset++
			continue
		}
		// Replay buf[offset:avail] exactly as OnData would feed it. The
		// read cursor r always moves forward while the parser's write
		// cursor trails it, so duplicate-sync rewinds compact the buffer
		// in place instead of looping.
		result := 0
		r := offset
		for r < avail && result == 0 {
			s.buf[s.next] = s.buf[r]
			s.next++
			r++
			result = s.m.onByte(true)
		}
		switch {
		case result > 0:
			reclaimed += result
			// The tail may start another message immediately.
			copy(s.buf, s.buf[r:avail])
			avail -= r
			offset = 0
		case result < 0:
			// Keep the failed candidate's bytes plus the unread tail and
			// resume scanning past the bogus sync byte.
			s.m.resetParse()
			copy(s.buf[s.next:], s.buf[r:avail])
			avail = s.next + (avail - r)
			s.next = 0
			offset = 1
		default:
			return reclaimed
		}
	}
	s.next = 0
	s.m.resetParse()
	return reclaimed
}
