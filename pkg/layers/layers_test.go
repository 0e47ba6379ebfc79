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

package layers

import (
	"bytes"
	"testing"

	"github.com/google/gopacket"

	"navlab.io/gnss/go-fusion/pkg/framer"
)

func TestFusionLayerSerialize(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	fl := &FusionLayer{
		MessageHeader: framer.MessageHeader{
			ProtocolVersion: 2,
			MessageVersion:  1,
			MessageType:     10000,
			SequenceNumber:  7,
			SourceID:        3,
		},
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	if err := gopacket.SerializeLayers(buf, opts, fl, gopacket.Payload(payload)); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}

	want := framer.BuildMessage(framer.MessageHeader{
		ProtocolVersion: 2,
		MessageVersion:  1,
		MessageType:     10000,
		SequenceNumber:  7,
		SourceID:        3,
	}, payload)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("serialized frame mismatch:\n got %x\nwant %x", buf.Bytes(), want)
	}
	if fl.PayloadSize != uint32(len(payload)) {
		t.Errorf("payload size not written back: %d", fl.PayloadSize)
	}
	if fl.CRC == 0 {
		t.Error("CRC not written back")
	}
}

func TestFusionLayerDecode(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := framer.BuildMessage(framer.MessageHeader{
		ProtocolVersion: 2,
		MessageType:     13003,
		SequenceNumber:  11,
	}, payload)

	packet := gopacket.NewPacket(frame, FusionLayerType, gopacket.Default)
	if packet.ErrorLayer() != nil {
		t.Fatalf("decode failed: %v", packet.ErrorLayer().Error())
	}
	layer := packet.Layer(FusionLayerType)
	if layer == nil {
		t.Fatal("no FusionEngine layer in packet")
	}
	fl := layer.(*FusionLayer)
	if fl.MessageType != 13003 || fl.SequenceNumber != 11 {
		t.Errorf("header mismatch: %+v", fl.MessageHeader)
	}
	if !bytes.Equal(fl.Payload, payload) {
		t.Errorf("payload mismatch: %x", fl.Payload)
	}
}

func TestFusionLayerRejectsBadCRC(t *testing.T) {
	frame := framer.BuildMessage(framer.MessageHeader{ProtocolVersion: 2}, []byte{1, 2, 3})
	frame[len(frame)-1] ^= 0x01

	packet := gopacket.NewPacket(frame, FusionLayerType, gopacket.Default)
	if packet.ErrorLayer() == nil {
		t.Error("expected decode error for corrupted frame")
	}
}

func TestFusionLayerRejectsTruncated(t *testing.T) {
	frame := framer.BuildMessage(framer.MessageHeader{ProtocolVersion: 2}, []byte{1, 2, 3})
	for _, cut := range []int{1, framer.FusionHeaderSize, len(frame) - 1} {
		packet := gopacket.NewPacket(frame[:cut], FusionLayerType, gopacket.Default)
		if packet.ErrorLayer() == nil {
			t.Errorf("expected decode error for %d byte prefix", cut)
		}
	}
}

func TestRTCMLayerSerialize(t *testing.T) {
	payload := []byte{0x3E, 0xC0, 0x00, 0x11, 0x22}
	rl := &RTCMLayer{}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	if err := gopacket.SerializeLayers(buf, opts, rl, gopacket.Payload(payload)); err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}

	want, err := framer.BuildRTCMFrame(payload)
	if err != nil {
		t.Fatalf("BuildRTCMFrame: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("serialized frame mismatch:\n got %x\nwant %x", buf.Bytes(), want)
	}
	if rl.Length != uint16(len(payload)) {
		t.Errorf("length not written back: %d", rl.Length)
	}
	if rl.MessageType != 1004 {
		t.Errorf("message type = %d, want 1004", rl.MessageType)
	}
}

func TestRTCMLayerSerializeRejectsOversizedPayload(t *testing.T) {
	rl := &RTCMLayer{}
	buf := gopacket.NewSerializeBuffer()
	payload := make([]byte, framer.RTCMMaxPayloadSize+1)
	err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, rl, gopacket.Payload(payload))
	if err == nil {
		t.Error("expected error for oversized payload")
	}
}

func TestRTCMLayerDecode(t *testing.T) {
	payload := []byte{0x43, 0x50, 0x00, 0x67}
	frame, err := framer.BuildRTCMFrame(payload)
	if err != nil {
		t.Fatalf("BuildRTCMFrame: %v", err)
	}

	packet := gopacket.NewPacket(frame, RTCMLayerType, gopacket.Default)
	if packet.ErrorLayer() != nil {
		t.Fatalf("decode failed: %v", packet.ErrorLayer().Error())
	}
	layer := packet.Layer(RTCMLayerType)
	if layer == nil {
		t.Fatal("no RTCM layer in packet")
	}
	rl := layer.(*RTCMLayer)
	if rl.MessageType != 1077 {
		t.Errorf("message type = %d, want 1077", rl.MessageType)
	}
	if rl.Length != uint16(len(payload)) {
		t.Errorf("length = %d, want %d", rl.Length, len(payload))
	}
	if !bytes.Equal(rl.Payload, payload) {
		t.Errorf("payload mismatch: %x", rl.Payload)
	}
}

func TestRTCMLayerRejectsBadFrames(t *testing.T) {
	frame, err := framer.BuildRTCMFrame([]byte{0x10, 0x20, 0x30})
	if err != nil {
		t.Fatalf("BuildRTCMFrame: %v", err)
	}

	corrupted := append([]byte(nil), frame...)
	corrupted[framer.RTCMHeaderSize] ^= 0x01
	if packet := gopacket.NewPacket(corrupted, RTCMLayerType, gopacket.Default); packet.ErrorLayer() == nil {
		t.Error("expected decode error for corrupted frame")
	}

	wrongPreamble := append([]byte(nil), frame...)
	wrongPreamble[0] = 0xD2
	if packet := gopacket.NewPacket(wrongPreamble, RTCMLayerType, gopacket.Default); packet.ErrorLayer() == nil {
		t.Error("expected decode error for wrong preamble")
	}

	if packet := gopacket.NewPacket(frame[:len(frame)-1], RTCMLayerType, gopacket.Default); packet.ErrorLayer() == nil {
		t.Error("expected decode error for truncated frame")
	}
}
