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

package capture

import (
	"os"

	"navlab.io/gnss/go-fusion/pkg/log"
)

// Writer records the raw receiver byte stream to a capture file. The
// stream is written as received, framing errors included, so recorded
// files replay through the framers exactly like a live stream.
type Writer struct {
	file    *os.File
	written uint64
}

func NewWriter(filename string) (*Writer, error) {
	file, err := os.Create(filename)
	if err != nil {
		log.Error("Error while creating capture file: %s", filename)
		return nil, err
	}
	return &Writer{
		file: file,
	}, nil
}

func (w *Writer) Write(buf []byte) (int, error) {
	n, err := w.file.Write(buf)
	w.written += uint64(n)
	return n, err
}

func (w *Writer) Flush() {
	w.file.Sync()
	w.file.Close()
	log.Info("Capture file closed: %s bytes: %d", w.file.Name(), w.written)
}
