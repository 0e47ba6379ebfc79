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

package command

import (
	"errors"
	"fmt"

	"github.com/imroc/req"

	"navlab.io/gnss/go-fusion/pkg/command/ifc"
	"navlab.io/gnss/go-fusion/pkg/config"
	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/srv/capture"
)

type ApiClient struct {
	*config.Config
	ApiPrefix string
}

var _ ifc.ApiClient = &ApiClient{}

func NewApiClient(cfg *config.Config) ifc.ApiClient {
	return &ApiClient{
		Config:    cfg,
		ApiPrefix: fmt.Sprintf("http://%s:%d/api", cfg.IP, capture.ApiPort),
	}
}

// Receivers sends request to list the receivers the server captures from
func (c *ApiClient) Receivers() ([]*config.Receiver, error) {
	r, err := req.Get(fmt.Sprintf("%s/receivers", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	var receivers []*config.Receiver
	err = r.ToJSON(&receivers)
	if err != nil {
		return nil, err
	}
	return receivers, nil
}

// Stats sends request to get stream statistics for all receivers
func (c *ApiClient) Stats() (map[string]*capture.StreamState, error) {
	r, err := req.Get(fmt.Sprintf("%s/stats", c.ApiPrefix))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	stats := make(map[string]*capture.StreamState)
	err = r.ToJSON(&stats)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ReceiverStats sends request to get stream statistics for one receiver
func (c *ApiClient) ReceiverStats(receiver string) (*capture.StreamState, error) {
	r, err := req.Get(fmt.Sprintf("%s/stats/%s", c.ApiPrefix, receiver))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	state := &capture.StreamState{}
	err = r.ToJSON(state)
	if err != nil {
		return nil, err
	}
	return state, nil
}

// Headers sends request to get the last message header per message type
func (c *ApiClient) Headers(receiver string) (map[string]framer.MessageHeader, error) {
	r, err := req.Get(fmt.Sprintf("%s/headers/%s", c.ApiPrefix, receiver))
	if err != nil {
		return nil, err
	}
	if r.Response().StatusCode != 200 {
		return nil, errors.New(r.Response().Status)
	}
	headers := make(map[string]framer.MessageHeader)
	err = r.ToJSON(&headers)
	if err != nil {
		return nil, err
	}
	return headers, nil
}

// Record sends request to start recording raw receiver streams
func (c *ApiClient) Record(dir, filePrefix string) error {
	record := &capture.Record{
		Dir:        dir,
		FilePrefix: filePrefix,
	}
	r, err := req.Post(fmt.Sprintf("%s/record", c.ApiPrefix), req.BodyJSON(record))
	if err != nil {
		return err
	}
	if r.Response().StatusCode != 200 {
		return errors.New(r.Response().Status)
	}
	return nil
}

// Flush sends request to stop recording and close the capture files
func (c *ApiClient) Flush() error {
	r, err := req.Get(fmt.Sprintf("%s/flush", c.ApiPrefix))
	if err != nil {
		return err
	}
	if r.Response().StatusCode != 200 {
		return errors.New(r.Response().Status)
	}
	return nil
}

// Version sends request to read the last version report of a receiver
func (c *ApiClient) Version(receiver string) (string, error) {
	r, err := req.Get(fmt.Sprintf("%s/version/get/%s", c.ApiPrefix, receiver))
	if err != nil {
		return "", err
	}
	if r.Response().StatusCode != 200 {
		return "", errors.New(r.Response().Status)
	}
	return r.String(), nil
}

// RequestVersion sends request to ask a receiver for a fresh version report
func (c *ApiClient) RequestVersion(receiver string) error {
	r, err := req.Get(fmt.Sprintf("%s/version/request/%s", c.ApiPrefix, receiver))
	if err != nil {
		return err
	}
	if r.Response().StatusCode != 200 {
		return errors.New(r.Response().Status)
	}
	return nil
}

// Reset sends request to reset receiver subsystems
func (c *ApiClient) Reset(receiver, level string) error {
	reset := &capture.ResetRequest{
		Level: level,
	}
	r, err := req.Post(fmt.Sprintf("%s/reset/%s", c.ApiPrefix, receiver), req.BodyJSON(reset))
	if err != nil {
		return err
	}
	if r.Response().StatusCode != 200 {
		return errors.New(r.Response().Status)
	}
	return nil
}
