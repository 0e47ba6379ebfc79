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

package capture

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	protocolFusion = "fusion"
	protocolRTCM   = "rtcm"
)

var (
	registerOnce sync.Once

	bytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gofusion",
			Subsystem: "capture",
			Name:      "bytes_received_total",
			Help:      "Raw bytes read from receivers.",
		},
		[]string{"receiver"},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gofusion",
			Subsystem: "capture",
			Name:      "frames_decoded_total",
			Help:      "Validated frames per receiver and protocol.",
		},
		[]string{"receiver", "protocol"},
	)
	framingErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gofusion",
			Subsystem: "capture",
			Name:      "framing_errors_total",
			Help:      "CRC mismatches and impossible frame lengths per receiver and protocol.",
		},
		[]string{"receiver", "protocol"},
	)
	sequenceGaps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gofusion",
			Subsystem: "capture",
			Name:      "sequence_gaps_total",
			Help:      "Messages missing from the FusionEngine sequence per receiver.",
		},
		[]string{"receiver"},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(bytesReceived, framesDecoded, framingErrors, sequenceGaps)
	})
}

func recordBytes(receiver string, n int) {
	bytesReceived.WithLabelValues(receiver).Add(float64(n))
}

func recordFrame(receiver, protocol string) {
	framesDecoded.WithLabelValues(receiver, protocol).Inc()
}

func recordFramingError(receiver, protocol string) {
	framingErrors.WithLabelValues(receiver, protocol).Inc()
}

func recordSequenceGap(receiver string, missed uint64) {
	sequenceGaps.WithLabelValues(receiver).Add(float64(missed))
}
