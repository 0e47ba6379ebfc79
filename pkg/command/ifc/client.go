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

package ifc

import (
	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/srv/capture"
)

type ApiClient interface {
	Receivers() ([]*config.Receiver, error)
	Stats() (map[string]*capture.StreamState, error)
	ReceiverStats(receiver string) (*capture.StreamState, error)
	Headers(receiver string) (map[string]framer.MessageHeader, error)

	Record(dir, filePrefix string) error
	Flush() error

	Version(receiver string) (string, error)
	RequestVersion(receiver string) error
	Reset(receiver, level string) error
}
