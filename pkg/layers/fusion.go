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

// Package layers defines gopacket layers for the FusionEngine and RTCM
// wire protocols. The capture pipeline runs complete frames produced by
// the framers through these layers so the rest of the code can use the
// usual gopacket machinery.
package layers

import (
	"errors"
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/log"
)

const (
	// FusionLayerNum identifies the layer
	FusionLayerNum = 1999
)

// FusionLayer is one complete FusionEngine message: validated header
// plus opaque payload. Typed payload decoding lives in pkg/messages.
type FusionLayer struct {
	layers.BaseLayer
	framer.MessageHeader
}

var FusionLayerType = gopacket.RegisterLayerType(FusionLayerNum,
	gopacket.LayerTypeMetadata{Name: "FusionLayerType", Decoder: gopacket.DecodeFunc(decodeFusionLayer)})

func (fl *FusionLayer) LayerType() gopacket.LayerType {
	return FusionLayerType
}

// SerializeTo serializes the message header into the SerializeBuffer.
// The payload size and CRC fields are computed from the payload already
// present in the buffer and written back to the header fields.
func (fl *FusionLayer) SerializeTo(b gopacket.SerializeBuffer, opts gopacket.SerializeOptions) error {
	frame := framer.BuildMessage(fl.MessageHeader, b.Bytes())
	headerBytes, err := b.PrependBytes(framer.FusionHeaderSize)
	if err != nil {
		return err
	}
	copy(headerBytes, frame[:framer.FusionHeaderSize])
	return fl.MessageHeader.Decode(headerBytes)
}

// DecodeFromBytes attempts to decode the byte slice as a FusionEngine message
func (fl *FusionLayer) DecodeFromBytes(data []byte, df gopacket.DecodeFeedback) error {
	if len(data) < framer.FusionHeaderSize {
		df.SetTruncated()
		return errors.New("FusionEngine packet too short")
	}

	if err := fl.MessageHeader.Decode(data[:framer.FusionHeaderSize]); err != nil {
		return err
	}

	size := framer.FusionHeaderSize + int(fl.PayloadSize)
	if len(data) < size {
		df.SetTruncated()
		return errors.New(fmt.Sprintf("FusionEngine packet truncated: have %d bytes, header wants %d", len(data), size))
	}

	if computed := framer.FusionCRC(data[:size]); computed != fl.CRC {
		return errors.New(fmt.Sprintf("Wrong FusionEngine CRC. Expected 0x%08x computed 0x%08x", fl.CRC, computed))
	}

	fl.BaseLayer = layers.BaseLayer{
		Contents: data[:framer.FusionHeaderSize],
		Payload:  data[framer.FusionHeaderSize:size],
	}

	return nil
}

func (fl *FusionLayer) NextLayerType() gopacket.LayerType {
	return gopacket.LayerTypePayload
}

func decodeFusionLayer(data []byte, p gopacket.PacketBuilder) error {
	fl := &FusionLayer{}
	err := fl.DecodeFromBytes(data, p)
	if err != nil {
		log.Error("Error while decoding FusionEngine layer: %s", err)
		return err
	}
	p.AddLayer(fl)
	return p.NextDecoder(fl.NextLayerType())
}
