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

package ctl

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"navlab.io/gnss/go-fusion/pkg/command"
	"navlab.io/gnss/go-fusion/pkg/config"
)

func NewHeadersCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "headers receiver",
		Short: "Show the last message header seen per message type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			headers, err := apiClient.Headers(args[0])
			if err != nil {
				return err
			}
			var types []string
			for messageType := range headers {
				types = append(types, messageType)
			}
			sort.Strings(types)
			for _, messageType := range types {
				header := headers[messageType]
				fmt.Printf("%s: seq=%d size=%d source=0x%08x\n",
					messageType, header.SequenceNumber, header.PayloadSize, header.SourceID)
			}
			return nil
		},
	}
	return cmd
}
