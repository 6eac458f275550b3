// Package slot encodes rates into the integer protocol read by the motion
// controller and publishes them through single-line files.
package slot

import (
	"fmt"
	"math"
)

// Consumer protocol. These are fixed by the motion controller that reads
// the slot files and are not configurable.
const (
	Scale  = 1e9    // mm/s to pm/s
	Offset = 100000 // bias added after scaling
	Min    = -273000
	Max    = 200000
	Width  = 9 // right-justified field width
)

// Encode converts a rate in mm/s to the clamped protocol integer. Rounding is
// half-to-even.
func Encode(rateMMPerSec float64) int {
	if math.IsNaN(rateMMPerSec) {
		return Offset
	}
	scaled := math.RoundToEven(rateMMPerSec * Scale)
	// Clamp before converting so huge rates cannot overflow int.
	v := math.Max(Min-Offset, math.Min(Max-Offset, scaled))
	return clamp(int(v) + Offset)
}

func clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

// Format renders v as a newline-terminated, right-justified decimal line.
func Format(v int) []byte {
	return []byte(fmt.Sprintf("%*d\n", Width, v))
}
