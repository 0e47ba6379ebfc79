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

package config

const (
	ConfigDir      = ".go-fusion"
	ConfigFile     = "config"
	StateFile      = "state.db"
	CaptureDirName = "captures"

	DefaultIP       = "127.0.0.1"
	DefaultLogLevel = "info"

	TransportTCP = "tcp"
	TransportUDP = "udp"

	DefaultReceiverName = "lg69t"
	DefaultReceiverIP   = "192.168.1.138"
	// DefaultFusionPort is the TCP port receivers serve FusionEngine output on
	DefaultFusionPort = 30200
	// DefaultListenPort is the local UDP port for receivers that broadcast
	DefaultListenPort = 30400
)
