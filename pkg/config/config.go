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

import (
	"errors"
	"fmt"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Receiver describes one GNSS receiver the capture server reads from.
// Transport udp means the receiver sends datagrams to our port; tcp
// means we dial the receiver and read its stream.
type Receiver struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
}

func (r *Receiver) Addr() string {
	return fmt.Sprintf("%s:%d", r.IP, r.Port)
}

type Config struct {
	IP         string      `json:"ip,omitempty"`
	LogLevel   string      `json:"loglevel,omitempty"`
	DBPath     string      `json:"dbpath,omitempty"`
	CaptureDir string      `json:"capturedir,omitempty"`
	Receivers  []*Receiver `json:"receivers"`
	filepath   string
}

func (c *Config) Persist(overwrite bool) error {
	if _, err := os.Stat(c.filepath); err == nil && !overwrite {
		return ErrConfigFileExists{Path: c.filepath}
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return err
	}

	dir := filepath.Dir(c.filepath)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	err = ioutil.WriteFile(c.filepath, data, 0644)
	if err != nil {
		return err
	}

	return nil
}

func (c *Config) Load() error {
	data, err := ioutil.ReadFile(c.filepath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// GetReceiverByName returns nil when no receiver carries the name.
func (c *Config) GetReceiverByName(name string) *Receiver {
	for _, r := range c.Receivers {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// GetReceiverByIP matches the sender address of an incoming datagram to
// a configured receiver.
func (c *Config) GetReceiverByIP(ip net.IP) (*Receiver, error) {
	for _, r := range c.Receivers {
		if ip.Equal(net.ParseIP(r.IP)) {
			return r, nil
		}
	}
	return nil, ErrReceiverNotFound{Name: ip.String()}
}

func (c *Config) Validate() error {
	names := make(map[string]bool)
	for _, r := range c.Receivers {
		if r.Name == "" {
			return errors.New("Receiver without a name")
		}
		if names[r.Name] {
			return errors.New(fmt.Sprintf("Duplicate receiver name: %s", r.Name))
		}
		names[r.Name] = true
		if r.Transport != TransportTCP && r.Transport != TransportUDP {
			return errors.New(fmt.Sprintf("Receiver %s: transport must be %s or %s", r.Name, TransportTCP, TransportUDP))
		}
		if net.ParseIP(r.IP) == nil {
			return errors.New(fmt.Sprintf("Receiver %s: invalid IP: %s", r.Name, r.IP))
		}
		if r.Port <= 0 || r.Port > 65535 {
			return errors.New(fmt.Sprintf("Receiver %s: invalid port: %d", r.Name, r.Port))
		}
	}
	return nil
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, ConfigFile)
}

func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, StateFile)
}

func DefaultCaptureDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = ""
	}
	return filepath.Join(home, ConfigDir, CaptureDirName)
}

func NewDefaultConfig() *Config {
	return &Config{
		IP:         DefaultIP,
		LogLevel:   DefaultLogLevel,
		DBPath:     DefaultDBPath(),
		CaptureDir: DefaultCaptureDir(),
		Receivers: []*Receiver{
			{
				Name:      DefaultReceiverName,
				Transport: TransportTCP,
				IP:        DefaultReceiverIP,
				Port:      DefaultFusionPort,
			},
		},
		filepath: DefaultConfigPath(),
	}
}
