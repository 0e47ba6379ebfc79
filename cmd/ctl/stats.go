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
	"navlab.io/gnss/go-fusion/pkg/srv/capture"
)

func NewStatsCommand() *cobra.Command {
	cfg := config.NewDefaultConfig()
	cfg.Load()
	cmd := &cobra.Command{
		Use:   "stats [receiver]",
		Short: "Show per-receiver stream statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient := command.NewApiClient(cfg)
			if len(args) == 1 {
				state, err := apiClient.ReceiverStats(args[0])
				if err != nil {
					return err
				}
				printStats(args[0], state)
				return nil
			}
			stats, err := apiClient.Stats()
			if err != nil {
				return err
			}
			var names []string
			for name := range stats {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				printStats(name, stats[name])
			}
			return nil
		},
	}
	return cmd
}

func printStats(name string, state *capture.StreamState) {
	fmt.Printf("%s:\n", name)
	fmt.Printf("  bytes received:  %d\n", state.BytesReceived)
	fmt.Printf("  fusion messages: %d\n", state.FusionMessages)
	fmt.Printf("  fusion bytes:    %d\n", state.FusionBytes)
	fmt.Printf("  last sequence:   %d\n", state.LastSequence)
	fmt.Printf("  sequence gaps:   %d\n", state.SequenceGaps)
	fmt.Printf("  rtcm messages:   %d\n", state.RTCMMessages)
	fmt.Printf("  rtcm errors:     %d\n", state.RTCMErrors)
}
