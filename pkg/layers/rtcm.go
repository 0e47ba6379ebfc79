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
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"navlab.io/gnss/go-fusion/pkg/crc24q"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/log"
)

const (
	// RTCMLayerNum identifies the layer
	RTCMLayerNum = 1998
)

// RTCMLayer is one complete RTCM 10403 frame. The payload is the frame
// body between the 3 byte header and the 3 byte CRC trailer.
type RTCMLayer struct {
	layers.BaseLayer
	MessageType uint16
	Length      uint16
	CRC         uint32
}

var RTCMLayerType = gopacket.RegisterLayerType(RTCMLayerNum,
	gopacket.LayerTypeMetadata{Name: "RTCMLayerType", Decoder: gopacket.DecodeFunc(decodeRTCMLayer)})

func (rl *RTCMLayer) LayerType() gopacket.LayerType {
	return RTCMLayerType
}

// SerializeTo serializes the frame header and CRC trailer around the
// payload already present in the SerializeBuffer.
func (rl *RTCMLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	payloadSize := len(b.Bytes())
	if payloadSize > framer.RTCMMaxPayloadSize {
		return errors.New(fmt.Sprintf("RTCM payload too long: %d bytes", payloadSize))
	}

	headerBytes, err := b.PrependBytes(framer.RTCMHeaderSize)
	if err != nil {
		return err
	}
	headerBytes[0] = framer.RTCMPreamble
	headerBytes[1] = byte(payloadSize >> 8)
	headerBytes[2] = byte(payloadSize)

	crc := crc24q.Checksum(b.Bytes())
	tailBytes, err := b.AppendBytes(crc24q.Size)
	if err != nil {
		return err
	}
	tailBytes[0] = byte(crc >> 16)
	tailBytes[1] = byte(crc >> 8)
	tailBytes[2] = byte(crc)

	rl.Length = uint16(payloadSize)
	rl.CRC = crc
	rl.MessageType = framer.RTCMMessageType(b.Bytes())
	return nil
}

// DecodeFromBytes attempts to decode the byte slice as an RTCM frame
func (rl *RTCMLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < framer.RTCMHeaderSize+crc24q.Size {
		df.SetTruncated()
		return errors.New("RTCM frame too short")
	}

	if data[0] != framer.RTCMPreamble {
		log.Debug("RTCM preamble is invalid")
		return errors.New(fmt.Sprintf("Wrong RTCM preamble. Must be 0x%02x", framer.RTCMPreamble))
	}

	rl.Length = uint16(data[1])<<8 | uint16(data[2])
	rl.Length &= 0x03FF
	size := framer.RTCMHeaderSize + int(rl.Length) + crc24q.Size
	if len(data) < size {
		df.SetTruncated()
		return errors.New(fmt.Sprintf("RTCM frame truncated: have %d bytes, header wants %d", len(data), size))
	}

	rl.CRC = uint32(data[size-3])<<16 | uint32(data[size-2])<<8 | uint32(data[size-1])
	if computed := crc24q.Checksum(data[:size-crc24q.Size]); computed != rl.CRC {
		return errors.New(fmt.Sprintf("Wrong RTCM CRC. Expected 0x%06x computed 0x%06x", rl.CRC, computed))
	}

	rl.MessageType = framer.RTCMMessageType(data[:size])
	rl.BaseLayer = layers.BaseLayer{
		Contents: data[:framer.RTCMHeaderSize],
		Payload:  data[framer.RTCMHeaderSize : size-crc24q.Size],
	}

	return nil
}

func (rl *RTCMLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

func decodeRTCMLayer(data []byte, p gopacket.PacketBuilder) error {
	rl := &RTCMLayer{}
	err := rl.DecodeFromBytes(data, p)
	if err != nil {
		log.Error("Error while decoding RTCM layer: %s", err)
		return err
	}
	p.AddLayer(rl)
	return p.NextDecoder(rl.NextLayerType())
}
