/*
Copyright 2026 The Lattice Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package geo

import "math"

// Measurement identifies a geometry measurement.
type Measurement int32

const (
	MeasureArea Measurement = iota
	MeasureLength
	MeasurePerimeter
)

func (m Measurement) String() string {
	switch m {
	case MeasureArea:
		return "AREA"
	case MeasureLength:
		return "LENGTH"
	case MeasurePerimeter:
		return "PERIMETER"
	default:
		return "UNKNOWN"
	}
}

// Measure computes the measurement in squared/linear coordinate units.
// Area subtracts holes; length sums line parts; perimeter sums polygon
// ring lengths.
func Measure(m Measurement, g *Geometry) float64 {
	switch m {
	case MeasureArea:
		var total float64
		for _, poly := range g.polys {
			for i, ring := range poly {
				a := ringArea(ring)
				if i == 0 {
					total += a
				} else {
					total -= a
				}
			}
		}
		return total
	case MeasureLength:
		var total float64
		for _, line := range g.lines {
			total += pathLength(line)
		}
		return total
	case MeasurePerimeter:
		var total float64
		for _, poly := range g.polys {
			for _, ring := range poly {
				total += pathLength(ring)
			}
		}
		return total
	default:
		return 0
	}
}

// ringArea is the shoelace area, sign-normalized.
func ringArea(ring []Point) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	for i := 1; i < len(ring); i++ {
		sum += ring[i-1].X*ring[i].Y - ring[i].X*ring[i-1].Y
	}
	// close the ring if the input does not repeat the first point
	if ring[0] != ring[len(ring)-1] {
		last := ring[len(ring)-1]
		sum += last.X*ring[0].Y - ring[0].X*last.Y
	}
	return math.Abs(sum) / 2
}

func pathLength(path []Point) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += math.Hypot(path[i].X-path[i-1].X, path[i].Y-path[i-1].Y)
	}
	return total
}

// MetersToDegrees approximates a meter distance in geographic degrees.
// Used when a buffer in meters must apply to SRID 4326 coordinates.
func MetersToDegrees(m float64) float64 {
	return m / 111111.0
}
