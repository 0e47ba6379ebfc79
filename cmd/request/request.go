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

package request

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"navlab.io/gnss/go-fusion/pkg/command"
	"navlab.io/gnss/go-fusion/pkg/config"
)

const (
	TimeoutOptionName = "timeout"
)

// NewCommand creates a cobra command object for querying a receiver
// directly, without going through a capture server
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Query a receiver directly",
	}
	cmd.AddCommand(NewVersionCommand())
	return cmd
}

func NewVersionCommand() *cobra.Command {
	var timeout time.Duration
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "version receiver",
		Short: "Ask a receiver for its version report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := command.RequestReceiverVersion(cfg, args[0], timeout)
			if err != nil {
				return err
			}
			fmt.Println(version)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, TimeoutOptionName, 5*time.Second, "Deadline for the whole exchange")
	return cmd
}
