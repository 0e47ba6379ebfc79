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

package decode

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"navlab.io/gnss/go-fusion/pkg/framer"
	"navlab.io/gnss/go-fusion/pkg/messages"
)

const (
	FormatOptionName  = "format"
	VerboseOptionName = "verbose"
	LBandOptionName   = "lband"

	readChunkSize    = 4096
	framerBufferSize = 65536
)

// stream is the part of a framer the file reader drives.
type stream interface {
	OnData(data []byte) int
}

type rtcmStats struct {
	Frames uint64 `json:"frames"`
	Errors uint64 `json:"errors"`
}

type decodeStats struct {
	Messages uint64     `json:"messages,omitempty"`
	RTCM     *rtcmStats `json:"rtcm,omitempty"`
}

func printStats(stats decodeStats) {
	out, err := yaml.Marshal(stats)
	if err != nil {
		return
	}
	fmt.Printf("---\n%s", out)
}

// NewCommand creates a cobra command object for decoding recorded
// capture files
func NewCommand() *cobra.Command {
	var format string
	var verbose, lband bool
	cmd := &cobra.Command{
		Use:   "decode file",
		Short: "Decode a recorded capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case "fusion":
				return decodeFusion(args[0], verbose, lband)
			case "rtcm":
				return decodeRTCM(args[0])
			default:
				return errors.New("Wrong format. Must be one of fusion/rtcm")
			}
		},
	}
	cmd.Flags().StringVar(&format, FormatOptionName, "fusion", "Stream format. Must be one of: fusion, rtcm")
	cmd.Flags().BoolVar(&verbose, VerboseOptionName, false, "Print full message contents")
	cmd.Flags().BoolVar(&lband, LBandOptionName, false, "Decode the RTCM frames tunneled in LBand messages")

	return cmd
}

func readInto(filename string, f stream) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	chunk := make([]byte, readChunkSize)
	for {
		length, readErr := file.Read(chunk)
		if length > 0 {
			f.OnData(chunk[:length])
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func decodeFusion(filename string, verbose, lband bool) error {
	count := 0
	rtcm := framer.NewRTCMFramer(framer.RTCMMaxFrameSize)
	rtcm.SetCallback(func(messageType uint16, frame []byte) {
		fmt.Printf("rtcm %d size=%d\n", messageType, len(frame))
	})

	fusion := framer.NewFusionFramer(framerBufferSize)
	fusion.SetCallback(func(header framer.MessageHeader, payload []byte) {
		count++
		messageType := messages.MessageType(header.MessageType)
		if lband {
			if messageType != messages.MessageTypeLBandFrame {
				return
			}
			decoded, err := messages.Decode(header, payload)
			if err != nil {
				fmt.Printf("# %s seq=%d does not decode: %s\n", messageType, header.SequenceNumber, err)
				return
			}
			rtcm.OnData(decoded.(*messages.LBandFrame).Data)
			return
		}

		fmt.Printf("%s seq=%d size=%d\n", messageType, header.SequenceNumber, len(payload))
		if !verbose {
			return
		}
		decoded, err := messages.Decode(header, payload)
		if err != nil {
			fmt.Printf("# does not decode: %s\n", err)
			return
		}
		fmt.Println(decoded)
	})

	if err := readInto(filename, fusion); err != nil {
		return err
	}
	stats := decodeStats{Messages: uint64(count)}
	if lband {
		stats.RTCM = &rtcmStats{Frames: rtcm.DecodedMessageCount(), Errors: rtcm.ErrorCount()}
	}
	printStats(stats)
	return nil
}

func decodeRTCM(filename string) error {
	f := framer.NewRTCMFramer(framer.RTCMMaxFrameSize)
	f.SetCallback(func(messageType uint16, frame []byte) {
		fmt.Printf("rtcm %d size=%d\n", messageType, len(frame))
	})
	if err := readInto(filename, f); err != nil {
		return err
	}
	printStats(decodeStats{RTCM: &rtcmStats{Frames: f.DecodedMessageCount(), Errors: f.ErrorCount()}})
	return nil
}
