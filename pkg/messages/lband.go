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
)

const lbandFrameFixedSize = 16

// LBandFrame tunnels a chunk of demodulated L-band corrections data.
// The Data bytes are an excerpt of an RTCM stream and reassemble across
// consecutive frames, so consumers feed them to an RTCM framer rather
// than parsing each frame in isolation.
type LBandFrame struct {
	SystemTimeNS int64
	ServiceID    uint16
	Data         []byte
}

func (l *LBandFrame) Type() MessageType {
	return MessageTypeLBandFrame
}

func (l *LBandFrame) Version() uint8 {
	return 0
}

func (l *LBandFrame) Serialize() ([]byte, error) {
	if len(l.Data) > 0xFFFF {
		return nil, errors.New(fmt.Sprintf("LBand user data too long: %d bytes", len(l.Data)))
	}
	buf := make([]byte, lbandFrameFixedSize+len(l.Data))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(l.SystemTimeNS))
	binary.LittleEndian.PutUint16(buf[8:10], l.ServiceID)
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(l.Data)))
	copy(buf[lbandFrameFixedSize:], l.Data)
	return buf, nil
}

func (l *LBandFrame) Decode(buf []byte) error {
	if len(buf) < lbandFrameFixedSize {
		return errors.New(fmt.Sprintf("LBandFrame payload too short: %d bytes", len(buf)))
	}
	l.SystemTimeNS = int64(binary.LittleEndian.Uint64(buf[0:8]))
	l.ServiceID = binary.LittleEndian.Uint16(buf[8:10])
	size := int(binary.LittleEndian.Uint16(buf[10:12]))
	if lbandFrameFixedSize+size > len(buf) {
		return errors.New("LBand user data overruns payload")
	}
	l.Data = append([]byte(nil), buf[lbandFrameFixedSize:lbandFrameFixedSize+size]...)
	return nil
}

func (l *LBandFrame) String() string {
	return fmt.Sprintf("LBandFrame{service=0x%04X, %d bytes}", l.ServiceID, len(l.Data))
}
