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

package messages

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"sigs.k8s.io/yaml"
)

type SolutionType uint8

const (
	SolutionTypeInvalid       SolutionType = 0
	SolutionTypeAutonomousGPS SolutionType = 1
	SolutionTypeDGPS          SolutionType = 2
	SolutionTypeRTKFixed      SolutionType = 4
	SolutionTypeRTKFloat      SolutionType = 5
	SolutionTypeIntegrate     SolutionType = 6
	SolutionTypeVisual        SolutionType = 9
	SolutionTypePPP           SolutionType = 10
)

var solutionTypeNames = map[SolutionType]string{
	SolutionTypeInvalid:       "Invalid",
	SolutionTypeAutonomousGPS: "AutonomousGPS",
	SolutionTypeDGPS:          "DGPS",
	SolutionTypeRTKFixed:      "RTKFixed",
	SolutionTypeRTKFloat:      "RTKFloat",
	SolutionTypeIntegrate:     "Integrate",
	SolutionTypeVisual:        "Visual",
	SolutionTypePPP:           "PPP",
}

func (s SolutionType) String() string {
	if name, ok := solutionTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// PoseSize is the serialized size of a Pose payload.
const PoseSize = 92

// Pose is the primary navigation solution: geodetic position, attitude
// and velocity stamped with device and GPS time.
type Pose struct {
	P1Time         Timestamp    `json:"p1_time"`
	GPSTime        Timestamp    `json:"gps_time"`
	SolutionType   SolutionType `json:"solution_type"`
	LLADeg         [3]float64   `json:"lla_deg"`
	YPRDeg         [3]float64   `json:"ypr_deg"`
	ENUVelocityMPS [3]float64   `json:"enu_velocity_mps"`
}

func (p *Pose) Type() MessageType {
	return MessageTypePose
}

func (p *Pose) Version() uint8 {
	return 1
}

func (p *Pose) Serialize() ([]byte, error) {
	buf := make([]byte, PoseSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.P1Time.Seconds)
	binary.LittleEndian.PutUint32(buf[4:8], p.P1Time.FractionNS)
	binary.LittleEndian.PutUint32(buf[8:12], p.GPSTime.Seconds)
	binary.LittleEndian.PutUint32(buf[12:16], p.GPSTime.FractionNS)
	buf[16] = uint8(p.SolutionType)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint64(buf[20+8*i:], math.Float64bits(p.LLADeg[i]))
		binary.LittleEndian.PutUint64(buf[44+8*i:], math.Float64bits(p.YPRDeg[i]))
		binary.LittleEndian.PutUint64(buf[68+8*i:], math.Float64bits(p.ENUVelocityMPS[i]))
	}
	return buf, nil
}

func (p *Pose) Decode(buf []byte) error {
	if len(buf) < PoseSize {
		return errors.New(fmt.Sprintf("Pose payload too short: %d bytes", len(buf)))
	}
	p.P1Time.Seconds = binary.LittleEndian.Uint32(buf[0:4])
	p.P1Time.FractionNS = binary.LittleEndian.Uint32(buf[4:8])
	p.GPSTime.Seconds = binary.LittleEndian.Uint32(buf[8:12])
	p.GPSTime.FractionNS = binary.LittleEndian.Uint32(buf[12:16])
	p.SolutionType = SolutionType(buf[16])
	for i := 0; i < 3; i++ {
		p.LLADeg[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[20+8*i:]))
		p.YPRDeg[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[44+8*i:]))
		p.ENUVelocityMPS[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[68+8*i:]))
	}
	return nil
}

func (p *Pose) String() string {
	out, err := yaml.Marshal(p)
	if err != nil {
		return err.Error()
	}
	return string(out)
}
