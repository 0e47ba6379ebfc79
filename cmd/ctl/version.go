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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"navlab.io/gnss/go-fusion/pkg/command"
	"navlab.io/gnss/go-fusion/pkg/config"
)

func NewVersionCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:       fmt.Sprintf("version get|request receiver"),
		Short:     "Read the stored version report or ask the receiver for a fresh one",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"get", "request"},
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			switch args[0] {
			case "get":
				version, err := apiClient.Version(args[1])
				if err != nil {
					return err
				}
				fmt.Print(version)
				return nil
			case "request":
				return apiClient.RequestVersion(args[1])
			default:
				return errors.New("Wrong version command. Must be one of get/request")
			}
		},
	}
	return cmd
}
