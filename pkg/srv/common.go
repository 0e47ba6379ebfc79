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

// Package srv holds the pieces shared by the capture server: the common
// server base, packet envelopes and the ancillary data helpers that
// carry the sender address and receiver name alongside packet bytes.
package srv

import (
	"context"
	"net"
	"time"

	"github.com/google/gopacket"

	"navlab.io/gnss/go-fusion/pkg/config"
)

type InPacket struct {
	Data []byte
	gopacket.CaptureInfo
}

type OutPacket struct {
	Data []byte
	*net.UDPAddr
}

// GetAddrPort returns the UDPAddr of the receiver that sent the packet
func GetAddrPort(packet gopacket.Packet) (*net.UDPAddr, error) {
	meta := packet.Metadata()
	if len(meta.CaptureInfo.AncillaryData) >= 1 {
		ancillary := meta.CaptureInfo.AncillaryData[0]
		udpAddr, ok := ancillary.(*net.UDPAddr)
		if !ok {
			return nil, ErrGetAddr{}
		}
		return udpAddr, nil
	}
	return nil, ErrGetAddr{}
}

// GetReceiverName returns the name of the receiver that sent the packet
func GetReceiverName(packet gopacket.Packet) (string, error) {
	meta := packet.Metadata()
	if len(meta.CaptureInfo.AncillaryData) >= 2 {
		ancillary := meta.CaptureInfo.AncillaryData[1]
		name, ok := ancillary.(string)
		if !ok {
			return "", ErrGetReceiverName{What: "can not cast ancillary data to string"}
		}
		return name, nil
	}
	return "", ErrGetReceiverName{What: "not enough ancillary data"}
}

type Server struct {
	context.Context
	*config.Config
	*net.UDPAddr
	ChOut chan OutPacket
}

// Now returns the current time in milliseconds since the epoch.
func Now() uint64 {
	return uint64(time.Now().UnixNano()) * uint64(time.Nanosecond) / uint64(time.Millisecond)
}
