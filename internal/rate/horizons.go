package rate

import "github.com/banshee-data/ratemeter/internal/window"

// Default horizon lengths, in samples.
const (
	DefaultShortSamples = 60
	DefaultMidSamples   = 120
	DefaultMinSamples   = 5
)

// Horizons are the trailing sample counts each estimate is fitted over.
// Long is normally the buffer capacity.
type Horizons struct {
	Short int
	Mid   int
	Long  int
}

// Rates holds one independent estimate per horizon.
type Rates struct {
	Short Estimate
	Mid   Estimate
	Long  Estimate
}

// Aggregate fits each horizon over the tail of buf. It reports false and
// computes nothing while buf holds fewer than minSamples samples.
func Aggregate(buf *window.Buffer, h Horizons, minSamples int) (Rates, bool) {
	if buf.Len() < minSamples {
		return Rates{}, false
	}
	return Rates{
		Short: Compute(buf.Slice(h.Short)),
		Mid:   Compute(buf.Slice(h.Mid)),
		Long:  Compute(buf.Slice(h.Long)),
	}, true
}
