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
	"bytes"
	"encoding/binary"
	"testing"
)

type rtcmReceived struct {
	messageType uint16
	frame       []byte
}

func recordRTCMInto(sink *[]rtcmReceived) RTCMMessageCallback {
	return func(messageType uint16, frame []byte) {
		*sink = append(*sink, rtcmReceived{messageType: messageType, frame: append([]byte(nil), frame...)})
	}
}

// rtcmPayload fills a payload whose first two bytes carry the message
// number. Filler bytes stay below 0xD3 so no accidental preamble appears.
func rtcmPayload(messageType uint16, size int) []byte {
	payload := make([]byte, size)
	if size >= 2 {
		binary.BigEndian.PutUint16(payload[0:2], messageType<<4)
	}
	for i := 2; i < size; i++ {
		payload[i] = byte(i % 200)
	}
	return payload
}

func mustFrame(t *testing.T, payload []byte) []byte {
	t.Helper()
	frame, err := BuildRTCMFrame(payload)
	if err != nil {
		t.Fatalf("BuildRTCMFrame: %s", err)
	}
	return frame
}

// An empty frame with a zeroed trailer can never carry a valid CRC, so it
// makes a deterministic corruption sample.
func corruptRTCMFrame() []byte {
	return []byte{RTCMPreamble, 0x00, 0x00, 0x00, 0x00, 0x00}
}

func TestRTCMRoundTrip(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1005, 20))

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))

	if n := f.OnData(frame); n != len(frame) {
		t.Errorf("OnData = %d, want %d", n, len(frame))
	}
	if len(got) != 1 {
		t.Fatalf("dispatched %d frames, want 1", len(got))
	}
	if got[0].messageType != 1005 {
		t.Errorf("message type = %d, want 1005", got[0].messageType)
	}
	if !bytes.Equal(got[0].frame, frame) {
		t.Errorf("frame = % x, want % x", got[0].frame, frame)
	}
	if f.DecodedMessageCount() != 1 || f.ErrorCount() != 0 {
		t.Errorf("counters = %d/%d, want 1/0", f.DecodedMessageCount(), f.ErrorCount())
	}
}

func TestRTCMChunkedDelivery(t *testing.T) {
	stream := append(mustFrame(t, rtcmPayload(1005, 12)), mustFrame(t, rtcmPayload(1074, 30))...)
	stream = append(stream, mustFrame(t, rtcmPayload(1230, 7))...)
	want := []uint16{1005, 1074, 1230}

	for _, chunkSize := range []int{1, 3, 7, len(stream)} {
		var got []rtcmReceived
		f := NewRTCMFramer(2048)
		f.SetCallback(recordRTCMInto(&got))

		framed := 0
		for i := 0; i < len(stream); i += chunkSize {
			end := i + chunkSize
			if end > len(stream) {
				end = len(stream)
			}
			framed += f.OnData(stream[i:end])
		}
		if framed != len(stream) {
			t.Errorf("chunk size %d: framed %d bytes, want %d", chunkSize, framed, len(stream))
		}
		if len(got) != len(want) {
			t.Fatalf("chunk size %d: dispatched %d frames, want %d", chunkSize, len(got), len(want))
		}
		for i, w := range want {
			if got[i].messageType != w {
				t.Errorf("chunk size %d: frame %d type = %d, want %d", chunkSize, i, got[i].messageType, w)
			}
		}
	}
}

func TestRTCMCRCMismatch(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1005, 16))
	frame[RTCMHeaderSize+4] ^= 0x40

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))
	f.SetWarnOnError(false)

	if n := f.OnData(frame); n != 0 {
		t.Errorf("OnData = %d, want 0", n)
	}
	if len(got) != 0 {
		t.Errorf("dispatched %d frames from a corrupt stream, want 0", len(got))
	}
	if f.DecodedMessageCount() != 0 || f.ErrorCount() != 1 {
		t.Errorf("counters = %d/%d, want 0/1", f.DecodedMessageCount(), f.ErrorCount())
	}
}

func TestRTCMGarbagePrefix(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1084, 24))
	stream := append([]byte{0x00, 0x42, 0x17, 0xFF, 0x01}, frame...)

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))
	if n := f.OnData(stream); n != len(frame) {
		t.Errorf("OnData = %d, want %d", n, len(frame))
	}
	if len(got) != 1 || got[0].messageType != 1084 {
		t.Fatalf("frame not recovered after garbage prefix: %+v", got)
	}
}

func TestRTCMFalseSyncRecovery(t *testing.T) {
	valid := mustFrame(t, rtcmPayload(1005, 16))
	stream := append(corruptRTCMFrame(), valid...)

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))
	f.SetWarnOnError(false)

	if n := f.OnData(stream); n != len(valid) {
		t.Errorf("OnData = %d, want %d", n, len(valid))
	}
	if len(got) != 1 || got[0].messageType != 1005 {
		t.Fatalf("valid frame not recovered after corrupt one: %+v", got)
	}
	if f.DecodedMessageCount() != 1 || f.ErrorCount() != 1 {
		t.Errorf("counters = %d/%d, want 1/1", f.DecodedMessageCount(), f.ErrorCount())
	}
}

// Two complete frames swallowed as the payload of a corrupt wrapper must
// both be reclaimed by a single resynchronization pass.
func TestRTCMResyncReclaimsBackToBack(t *testing.T) {
	inner1 := mustFrame(t, rtcmPayload(1074, 12))
	inner2 := mustFrame(t, rtcmPayload(1084, 16))
	content := append([]byte{0x10, 0x20}, inner1...)
	content = append(content, inner2...)
	wrapper := mustFrame(t, content)
	// Invalidate the wrapper by flipping a filler byte ahead of the
	// nested frames.
	wrapper[RTCMHeaderSize] ^= 0x01

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))
	f.SetWarnOnError(false)

	if n := f.OnData(wrapper); n != len(inner1)+len(inner2) {
		t.Errorf("OnData = %d, want %d", n, len(inner1)+len(inner2))
	}
	if len(got) != 2 {
		t.Fatalf("dispatched %d frames, want 2", len(got))
	}
	if got[0].messageType != 1074 || got[1].messageType != 1084 {
		t.Errorf("frames out of order: types %d, %d", got[0].messageType, got[1].messageType)
	}
	if !bytes.Equal(got[0].frame, inner1) || !bytes.Equal(got[1].frame, inner2) {
		t.Errorf("reclaimed frames mangled")
	}
	if f.DecodedMessageCount() != 2 || f.ErrorCount() != 1 {
		t.Errorf("counters = %d/%d, want 2/1", f.DecodedMessageCount(), f.ErrorCount())
	}
}

func TestRTCMOversizeVsCapacity(t *testing.T) {
	small := mustFrame(t, rtcmPayload(1230, 20))

	var got []rtcmReceived
	f := NewRTCMFramer(64)
	f.SetCallback(recordRTCMInto(&got))
	f.SetWarnOnError(false)

	// A header declaring a 100-byte payload overruns the 64-byte buffer.
	stream := append([]byte{RTCMPreamble, 0x00, 0x64}, small...)
	if n := f.OnData(stream); n != len(small) {
		t.Errorf("OnData = %d, want %d", n, len(small))
	}
	if len(got) != 1 || got[0].messageType != 1230 {
		t.Fatalf("small frame lost after oversized rejection: %+v", got)
	}
	if f.ErrorCount() != 1 {
		t.Errorf("error count = %d, want 1", f.ErrorCount())
	}
}

func TestRTCMMaxFrameSize(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1005, RTCMMaxPayloadSize))
	if len(frame) != RTCMMaxFrameSize {
		t.Fatalf("max frame is %d bytes, want %d", len(frame), RTCMMaxFrameSize)
	}

	var got []rtcmReceived
	f := NewRTCMFramer(RTCMMaxFrameSize)
	f.SetCallback(recordRTCMInto(&got))
	if n := f.OnData(frame); n != len(frame) {
		t.Errorf("OnData = %d, want %d", n, len(frame))
	}
	if len(got) != 1 || len(got[0].frame) != RTCMMaxFrameSize {
		t.Fatalf("max-size frame not dispatched: %+v", len(got))
	}

	// One byte short of a full frame's capacity rejects it.
	tight := NewRTCMFramer(RTCMMaxFrameSize - 1)
	tight.SetWarnOnError(false)
	if n := tight.OnData(frame); n != 0 {
		t.Errorf("OnData on a tight buffer = %d, want 0", n)
	}
	if tight.ErrorCount() == 0 {
		t.Error("tight buffer recorded no framing error")
	}
}

func TestRTCMZeroPayload(t *testing.T) {
	frame := mustFrame(t, nil)
	if len(frame) != RTCMHeaderSize+3 {
		t.Fatalf("empty frame is %d bytes, want %d", len(frame), RTCMHeaderSize+3)
	}

	var got []rtcmReceived
	f := NewRTCMFramer(64)
	f.SetCallback(recordRTCMInto(&got))
	if n := f.OnData(frame); n != len(frame) {
		t.Errorf("OnData = %d, want %d", n, len(frame))
	}
	if len(got) != 1 {
		t.Fatalf("dispatched %d frames, want 1", len(got))
	}
	if got[0].messageType != 0 {
		t.Errorf("empty frame reports type %d, want 0", got[0].messageType)
	}
}

func TestRTCMBuildRejectsOversizedPayload(t *testing.T) {
	if _, err := BuildRTCMFrame(make([]byte, RTCMMaxPayloadSize+1)); err == nil {
		t.Error("BuildRTCMFrame accepted an oversized payload")
	}
}

func TestRTCMInertFramer(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1005, 8))
	for _, capacity := range []int{0, 5} {
		var got []rtcmReceived
		f := NewRTCMFramer(capacity)
		f.SetCallback(recordRTCMInto(&got))
		if n := f.OnData(frame); n != 0 {
			t.Errorf("capacity %d: OnData = %d, want 0", capacity, n)
		}
		if len(got) != 0 {
			t.Errorf("capacity %d: inert framer dispatched %d frames", capacity, len(got))
		}
	}
}

func TestRTCMCountersAccumulate(t *testing.T) {
	valid1 := mustFrame(t, rtcmPayload(1005, 10))
	valid2 := mustFrame(t, rtcmPayload(1074, 14))

	f := NewRTCMFramer(2048)
	f.SetWarnOnError(false)
	f.OnData(valid1)
	f.OnData(corruptRTCMFrame())
	f.OnData(valid2)
	if f.DecodedMessageCount() != 2 {
		t.Errorf("decoded count = %d, want 2", f.DecodedMessageCount())
	}
	if f.ErrorCount() != 1 {
		t.Errorf("error count = %d, want 1", f.ErrorCount())
	}
}

func TestRTCMReset(t *testing.T) {
	frame := mustFrame(t, rtcmPayload(1005, 12))

	var got []rtcmReceived
	f := NewRTCMFramer(2048)
	f.SetCallback(recordRTCMInto(&got))

	f.OnData(frame[:4])
	f.Reset()
	if n := f.OnData(frame); n != len(frame) {
		t.Errorf("OnData after reset = %d, want %d", n, len(frame))
	}
	if len(got) != 1 || got[0].messageType != 1005 {
		t.Fatalf("frame after reset mangled: %+v", got)
	}
}

func TestRTCMMessageTypeExtraction(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
		want  uint16
	}{
		{name: "known type", frame: mustFrame(t, rtcmPayload(1005, 8)), want: 1005},
		{name: "max type", frame: mustFrame(t, rtcmPayload(4095, 4)), want: 4095},
		{name: "empty payload", frame: mustFrame(t, nil), want: 0},
		{name: "one-byte payload", frame: mustFrame(t, []byte{0xAB}), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RTCMMessageType(tt.frame); got != tt.want {
				t.Errorf("RTCMMessageType = %d, want %d", got, tt.want)
			}
		})
	}
}
