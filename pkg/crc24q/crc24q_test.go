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

package crc24q

import (
	"testing"
)

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint32
	}{
		{name: "empty", data: nil, want: 0},
		{name: "single byte", data: []byte{0x01}, want: 0x864CFB},
		{name: "check sequence", data: []byte("123456789"), want: 0xCDE703},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(% x) = %06X, want %06X", tt.data, got, tt.want)
			}
		})
	}
}

func TestUpdateChaining(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	whole := Checksum(data)
	for split := 0; split <= len(data); split++ {
		got := Update(Update(0, data[:split]), data[split:])
		if got != whole {
			t.Fatalf("split at %d: chained checksum %06X, want %06X", split, got, whole)
		}
	}
}

func TestChecksumWithTrailerIsZero(t *testing.T) {
	data := []byte{0xD3, 0x00, 0x04, 0x4C, 0xE0, 0x00, 0x80}
	crc := Checksum(data)
	sealed := append(append([]byte{}, data...), byte(crc>>16), byte(crc>>8), byte(crc))
	if got := Checksum(sealed); got != 0 {
		t.Errorf("checksum over sealed frame = %06X, want 0", got)
	}
}
