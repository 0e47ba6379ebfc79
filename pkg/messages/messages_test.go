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
	"reflect"
	"strings"
	"testing"

	"navlab.io/gnss/go-fusion/pkg/framer"
)

func TestPayloadRoundTrips(t *testing.T) {
	cases := []struct {
		name string
		in   Payload
		out  Payload
	}{
		{
			name: "Pose",
			in: &Pose{
				P1Time:         Timestamp{Seconds: 123, FractionNS: 456000000},
				GPSTime:        Timestamp{Seconds: 1282677727, FractionNS: 500000000},
				SolutionType:   SolutionTypeRTKFixed,
				LLADeg:         [3]float64{37.7749, -122.4194, 12.5},
				YPRDeg:         [3]float64{90.0, -1.5, 0.25},
				ENUVelocityMPS: [3]float64{0.1, -0.2, 0.05},
			},
			out: &Pose{},
		},
		{
			name: "VersionInfo",
			in: &VersionInfo{
				SystemTimeNS:    1234567890123,
				FirmwareVersion: "lg69t-ap-0.17.2",
				EngineVersion:   "fe-2.1.0",
				HardwareVersion: "",
				ReceiverVersion: "teseo-5.9.13",
			},
			out: &VersionInfo{},
		},
		{
			name: "EventNotification",
			in: &EventNotification{
				EventType:    EventTypeReset,
				SystemTimeNS: 42,
				EventFlags:   uint64(ResetColdStart),
				Description:  "cold start requested",
			},
			out: &EventNotification{},
		},
		{
			name: "CommandResponse",
			in:   &CommandResponse{SourceSequenceNumber: 99, Response: ResponseValueError},
			out:  &CommandResponse{},
		},
		{
			name: "MessageRequest",
			in:   &MessageRequest{RequestedType: MessageTypeVersionInfo},
			out:  &MessageRequest{},
		},
		{
			name: "Reset",
			in:   &Reset{Mask: ResetWarmStart},
			out:  &Reset{},
		},
		{
			name: "LBandFrame",
			in: &LBandFrame{
				SystemTimeNS: 7_000_000_001,
				ServiceID:    0xE6,
				Data:         []byte{0xD3, 0x00, 0x01, 0xFF, 0x83, 0x6D, 0xF7},
			},
			out: &LBandFrame{},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			buf, err := c.in.Serialize()
			if err != nil {
				t.Fatalf("Serialize: %v", err)
			}
			if err := c.out.Decode(buf); err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(c.in, c.out) {
				t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", c.in, c.out)
			}
		})
	}
}

func TestPoseSerializedSize(t *testing.T) {
	buf, err := (&Pose{}).Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(buf) != PoseSize {
		t.Errorf("serialized size = %d, want %d", len(buf), PoseSize)
	}
}

func TestBuildFrameThroughFramer(t *testing.T) {
	want := &Pose{
		P1Time:       Timestamp{Seconds: 10, FractionNS: 0},
		GPSTime:      Timestamp{Seconds: invalidTimeSeconds},
		SolutionType: SolutionTypeAutonomousGPS,
		LLADeg:       [3]float64{55.0, 37.0, 140.0},
	}
	frame, err := BuildFrame(17, want)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	var got Payload
	f := framer.NewFusionFramer(1024)
	f.SetCallback(func(header framer.MessageHeader, payload []byte) {
		if header.ProtocolVersion != ProtocolVersion {
			t.Errorf("protocol version = %d, want %d", header.ProtocolVersion, ProtocolVersion)
		}
		if header.SequenceNumber != 17 {
			t.Errorf("sequence = %d, want 17", header.SequenceNumber)
		}
		p, err := Decode(header, payload)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		got = p
	})
	if n := f.OnData(frame); n != len(frame) {
		t.Fatalf("OnData framed %d bytes, want %d", n, len(frame))
	}
	if !reflect.DeepEqual(want, got) {
		t.Errorf("decoded payload mismatch:\n in: %+v\nout: %+v", want, got)
	}
}

func TestVersionInfoRejectsLongString(t *testing.T) {
	v := &VersionInfo{FirmwareVersion: strings.Repeat("x", 256)}
	if _, err := v.Serialize(); err == nil {
		t.Error("expected error for 256 byte version string")
	}
}

func TestVersionInfoTruncatedStrings(t *testing.T) {
	v := &VersionInfo{FirmwareVersion: "fw-1.0", EngineVersion: "eng-2.0"}
	buf, err := v.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// Drop the tail of the last string so a length prefix overruns.
	if err := (&VersionInfo{}).Decode(buf[:len(buf)-2]); err == nil {
		t.Error("expected error for truncated string region")
	}
}

func TestEventNotificationTruncatedDescription(t *testing.T) {
	e := &EventNotification{EventType: EventTypeLog, Description: "filter reset"}
	buf, err := e.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if err := (&EventNotification{}).Decode(buf[:len(buf)-1]); err == nil {
		t.Error("expected error for truncated description")
	}
}

func TestLBandFrameCopiesData(t *testing.T) {
	src := &LBandFrame{ServiceID: 1, Data: []byte{1, 2, 3}}
	buf, err := src.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	var dst LBandFrame
	if err := dst.Decode(buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	buf[lbandFrameFixedSize] = 0xAA
	if dst.Data[0] != 1 {
		t.Error("decoded data aliases the source buffer")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	header := framer.MessageHeader{MessageType: uint16(MessageTypeGNSSInfo)}
	if _, err := Decode(header, nil); err == nil {
		t.Error("expected error for message type without codec")
	}
}

func TestDecodeShortPayloads(t *testing.T) {
	types := []MessageType{
		MessageTypePose,
		MessageTypeLBandFrame,
		MessageTypeCommandResponse,
		MessageTypeMessageRequest,
		MessageTypeReset,
		MessageTypeVersionInfo,
		MessageTypeEventNotification,
	}
	for _, mt := range types {
		header := framer.MessageHeader{MessageType: uint16(mt)}
		if _, err := Decode(header, []byte{0x01}); err == nil {
			t.Errorf("%s: expected error for 1 byte payload", mt)
		}
	}
}

func TestTimestamp(t *testing.T) {
	ts := Timestamp{Seconds: 5, FractionNS: 250000000}
	if !ts.Valid() {
		t.Error("timestamp should be valid")
	}
	if got := ts.String(); got != "5.250000000" {
		t.Errorf("String() = %q", got)
	}
	invalid := Timestamp{Seconds: invalidTimeSeconds}
	if invalid.Valid() {
		t.Error("all ones seconds should be invalid")
	}
	if got := invalid.String(); got != "invalid" {
		t.Errorf("String() = %q", got)
	}
}

func TestEnumNames(t *testing.T) {
	if got := MessageTypePose.String(); got != "Pose" {
		t.Errorf("MessageType name = %q", got)
	}
	if got := MessageType(4242).String(); got != "Unknown(4242)" {
		t.Errorf("MessageType name = %q", got)
	}
	if got := SolutionTypeRTKFloat.String(); got != "RTKFloat" {
		t.Errorf("SolutionType name = %q", got)
	}
	if got := ResponseExecutionFailure.String(); got != "ExecutionFailure" {
		t.Errorf("ResponseStatus name = %q", got)
	}
	if got := EventTypeConfigChange.String(); got != "ConfigChange" {
		t.Errorf("EventType name = %q", got)
	}
}
