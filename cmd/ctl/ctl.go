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

	"github.com/spf13/cobra"

	"navlab.io/gnss/go-fusion/pkg/command"
	"navlab.io/gnss/go-fusion/pkg/config"
)

const (
	DirOptionName        = "dir"
	FilePrefixOptionName = "file-prefix"
	LevelOptionName      = "level"
)

// NewCommand creates a cobra command object for interacting with a
// running capture server
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Interact with a running capture server",
	}
	cmd.AddCommand(NewReceiversCommand())
	cmd.AddCommand(NewStatsCommand())
	cmd.AddCommand(NewHeadersCommand())
	cmd.AddCommand(NewRecordCommand())
	cmd.AddCommand(NewVersionCommand())
	cmd.AddCommand(NewResetCommand())
	return cmd
}

func NewReceiversCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "receivers",
		Short: "List the receivers the server captures from",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			receivers, err := apiClient.Receivers()
			if err != nil {
				return err
			}
			for _, receiver := range receivers {
				fmt.Printf("%s %s %s\n", receiver.Name, receiver.Transport, receiver.Addr())
			}
			return nil
		},
	}
	return cmd
}
