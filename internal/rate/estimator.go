// Package rate turns buffered distance samples into velocity estimates:
// per-horizon least-squares fits and a weighted rolling average of the
// short-horizon fit.
package rate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ratemeter/internal/window"
)

// Estimate is the result of fitting a line to a run of samples.
type Estimate struct {
	Rate       float64 `json:"rate"`       // mm/s
	Count      int     `json:"count"`      // samples used
	Confidence float64 `json:"confidence"` // Pearson r of the fit, in [-1, 1]
}

// RSquared is the coefficient of determination of the fit.
func (e Estimate) RSquared() float64 { return e.Confidence * e.Confidence }

// Compute fits distance against time over samples with ordinary least
// squares. Fewer than two samples yield the zero Estimate.
func Compute(samples []window.Sample) Estimate {
	n := len(samples)
	if n < 2 {
		return Estimate{}
	}

	if n == 2 {
		dt := samples[1].Time.Sub(samples[0].Time).Seconds()
		dd := samples[1].Distance - samples[0].Distance
		if dt == 0 {
			return Estimate{Count: n}
		}
		e := Estimate{Rate: dd / dt, Count: n}
		switch {
		case dd > 0:
			e.Confidence = 1
		case dd < 0:
			e.Confidence = -1
		}
		return e
	}

	// Times are relative to the first sample so wall-clock seconds since
	// the epoch do not swamp the sub-second spacing.
	t0 := samples[0].Time
	x := make([]float64, n)
	y := make([]float64, n)
	for i, s := range samples {
		x[i] = s.Time.Sub(t0).Seconds()
		y[i] = s.Distance
	}

	if stat.Variance(x, nil) == 0 {
		return Estimate{Count: n}
	}

	_, slope := stat.LinearRegression(x, y, nil, false)
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		r = 0
	}
	if math.IsNaN(slope) {
		slope = 0
	}

	return Estimate{
		Rate:       slope,
		Count:      n,
		Confidence: math.Max(-1, math.Min(1, r)),
	}
}
