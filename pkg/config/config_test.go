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
	"net"
	"path/filepath"
	"reflect"
	"testing"
)

func testConfig(t *testing.T) *Config {
	cfg := NewDefaultConfig()
	cfg.filepath = filepath.Join(t.TempDir(), "config")
	return cfg
}

func TestPersistLoad(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogLevel = "debug"
	cfg.Receivers = append(cfg.Receivers, &Receiver{
		Name:      "rover",
		Transport: TransportUDP,
		IP:        "192.168.1.77",
		Port:      DefaultListenPort,
	})
	if err := cfg.Persist(false); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	loaded := &Config{filepath: cfg.filepath}
	if err := loaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, loaded) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", cfg, loaded)
	}
}

func TestPersistRefusesOverwrite(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.Persist(false); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	err := cfg.Persist(false)
	if _, ok := err.(ErrConfigFileExists); !ok {
		t.Errorf("expected ErrConfigFileExists, got %v", err)
	}
	if err := cfg.Persist(true); err != nil {
		t.Errorf("Persist with overwrite: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg := &Config{filepath: filepath.Join(t.TempDir(), "nope")}
	if err := cfg.Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestGetReceiver(t *testing.T) {
	cfg := NewDefaultConfig()
	if r := cfg.GetReceiverByName(DefaultReceiverName); r == nil {
		t.Errorf("default receiver %s not found", DefaultReceiverName)
	}
	if r := cfg.GetReceiverByName("nope"); r != nil {
		t.Errorf("unexpected receiver: %+v", r)
	}

	r, err := cfg.GetReceiverByIP(net.ParseIP(DefaultReceiverIP))
	if err != nil {
		t.Fatalf("GetReceiverByIP: %v", err)
	}
	if r.Name != DefaultReceiverName {
		t.Errorf("receiver name = %s", r.Name)
	}
	if _, err := cfg.GetReceiverByIP(net.ParseIP("10.0.0.1")); err == nil {
		t.Error("expected error for unknown IP")
	}
}

func TestValidate(t *testing.T) {
	good := NewDefaultConfig()
	if err := good.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	cases := []struct {
		name     string
		receiver *Receiver
	}{
		{"no name", &Receiver{Transport: TransportTCP, IP: "10.0.0.1", Port: 1}},
		{"duplicate name", &Receiver{Name: DefaultReceiverName, Transport: TransportTCP, IP: "10.0.0.1", Port: 1}},
		{"bad transport", &Receiver{Name: "r", Transport: "serial", IP: "10.0.0.1", Port: 1}},
		{"bad ip", &Receiver{Name: "r", Transport: TransportTCP, IP: "not-an-ip", Port: 1}},
		{"bad port", &Receiver{Name: "r", Transport: TransportTCP, IP: "10.0.0.1", Port: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Receivers = append(cfg.Receivers, c.receiver)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestReceiverAddr(t *testing.T) {
	r := &Receiver{IP: "192.168.1.138", Port: 30200}
	if got := r.Addr(); got != "192.168.1.138:30200" {
		t.Errorf("Addr() = %q", got)
	}
}
