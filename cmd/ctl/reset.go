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
	"github.com/spf13/cobra"

	"navlab.io/gnss/go-fusion/pkg/command"
	"navlab.io/gnss/go-fusion/pkg/config"
)

func NewResetCommand() *cobra.Command {
	var level string
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "reset receiver",
		Short: "Reset receiver subsystems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			return apiClient.Reset(args[0], level)
		},
	}
	cmd.Flags().StringVar(&level, LevelOptionName, "", "Reset level. Must be one of: navigation, corrections, hot, warm, cold, factory")
	cmd.MarkFlagRequired(LevelOptionName)

	return cmd
}
