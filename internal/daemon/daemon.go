// Package daemon runs the fixed-period cycle that turns sensor readings into
// published rates.
package daemon

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/banshee-data/ratemeter/internal/metrics"
	"github.com/banshee-data/ratemeter/internal/monitoring"
	"github.com/banshee-data/ratemeter/internal/rate"
	"github.com/banshee-data/ratemeter/internal/sensor"
	"github.com/banshee-data/ratemeter/internal/slot"
	"github.com/banshee-data/ratemeter/internal/status"
	"github.com/banshee-data/ratemeter/internal/timeutil"
	"github.com/banshee-data/ratemeter/internal/window"
)

// Options are the cycle settings. Zero values fall back to the package
// defaults of window and rate.
type Options struct {
	Interval       time.Duration
	Horizons       rate.Horizons
	MinSamples     int
	SmoothingDepth int
	PruneMaxAge    time.Duration
}

// DefaultOptions returns the stock cycle settings.
func DefaultOptions() Options {
	return Options{
		Interval: time.Second,
		Horizons: rate.Horizons{
			Short: rate.DefaultShortSamples,
			Mid:   rate.DefaultMidSamples,
			Long:  window.DefaultCapacity,
		},
		MinSamples:     rate.DefaultMinSamples,
		SmoothingDepth: rate.DefaultSmoothingDepth,
		PruneMaxAge:    240 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	if o.Horizons.Long < 1 {
		o.Horizons.Long = def.Horizons.Long
	}
	if o.Horizons.Short < 1 {
		o.Horizons.Short = min(def.Horizons.Short, o.Horizons.Long)
	}
	if o.Horizons.Mid < 1 {
		o.Horizons.Mid = min(def.Horizons.Mid, o.Horizons.Long)
	}
	if o.MinSamples < 2 {
		o.MinSamples = def.MinSamples
	}
	if o.SmoothingDepth < 1 {
		o.SmoothingDepth = def.SmoothingDepth
	}
	if o.PruneMaxAge <= 0 {
		o.PruneMaxAge = def.PruneMaxAge
	}
	return o
}

// Deps are the collaborators of a Daemon. Source and Slots are required;
// the rest are optional.
type Deps struct {
	Source sensor.Source
	Slots  *slot.Set
	Clock  timeutil.Clock

	// Batcher receives every reading when metrics export is enabled.
	Batcher *metrics.Batcher
	// Exporter is drained when Run returns.
	Exporter *metrics.CommandExporter
	// Board receives a snapshot after every published cycle.
	Board *status.Board
}

// Daemon owns the window, the smoother and the slots. It is not safe for
// concurrent use; only Run's goroutine may call Cycle.
type Daemon struct {
	opts     Options
	source   sensor.Source
	slots    *slot.Set
	clock    timeutil.Clock
	batcher  *metrics.Batcher
	exporter *metrics.CommandExporter
	board    *status.Board

	buf      *window.Buffer
	smoother *rate.Smoother

	cycles uint64
	misses uint64
}

// New creates a Daemon. A nil Clock uses the real clock.
func New(opts Options, deps Deps) *Daemon {
	opts = opts.withDefaults()
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Daemon{
		opts:     opts,
		source:   deps.Source,
		slots:    deps.Slots,
		clock:    clock,
		batcher:  deps.Batcher,
		exporter: deps.Exporter,
		board:    deps.Board,
		buf:      window.NewBuffer(opts.Horizons.Long),
		smoother: rate.NewSmoother(opts.SmoothingDepth, opts.Horizons.Short),
	}
}

// Buffer exposes the window for inspection in tests and tools.
func (d *Daemon) Buffer() *window.Buffer { return d.buf }

// CycleResult describes what one cycle did.
type CycleResult struct {
	Start     time.Time
	Present   bool
	Distance  float64
	Published bool
	Rates     rate.Rates
	Smoothed  float64
	Encoded   slot.Encoded
	Pruned    int
	// Err holds slot write failures. They are logged and do not stop the loop.
	Err error
}

// Cycle performs one fetch and, when enough samples are buffered, publishes
// the four rates.
func (d *Daemon) Cycle(ctx context.Context) CycleResult {
	now := d.clock.Now()
	res := CycleResult{Start: now}
	d.cycles++

	dist, ok := d.source.Fetch(ctx)
	if ok && (math.IsNaN(dist) || math.IsInf(dist, 0)) {
		monitoring.Logf("Discarding non-finite distance %v", dist)
		ok = false
	}
	if !ok {
		d.misses++
		res.Pruned = d.buf.Prune(now, d.opts.PruneMaxAge)
		if res.Pruned > 0 {
			monitoring.Verbosef("pruned %d stale samples, %d left", res.Pruned, d.buf.Len())
		}
		return res
	}
	res.Present = true
	res.Distance = dist

	if err := d.buf.Push(window.Sample{Time: now, Distance: dist}); err != nil {
		if errors.Is(err, window.ErrOutOfOrder) {
			monitoring.Logf("Dropping sample at %s: %v", now.Format(time.RFC3339Nano), err)
			return res
		}
		monitoring.Logf("Error buffering sample: %v", err)
		return res
	}

	if d.batcher != nil {
		d.batcher.Add(now, dist)
	}

	rates, ok := rate.Aggregate(d.buf, d.opts.Horizons, d.opts.MinSamples)
	if !ok {
		return res
	}
	d.smoother.Push(rates.Short)
	smoothed := d.smoother.Rate()

	monitoring.Verbosef("%s dist=%.6f rate_short=%.2f r2_short=%.4f rate_mid=%.2f r2_mid=%.4f rate_long=%.2f r2_long=%.4f avg_rate=%.2f nm/s",
		now.Format("2006-01-02 15:04:05"), dist,
		rates.Short.Rate*1e6, rates.Short.RSquared(),
		rates.Mid.Rate*1e6, rates.Mid.RSquared(),
		rates.Long.Rate*1e6, rates.Long.RSquared(),
		smoothed*1e6)

	enc, err := d.slots.Publish(slot.Values{
		Short:    rates.Short.Rate,
		Mid:      rates.Mid.Rate,
		Long:     rates.Long.Rate,
		Smoothed: smoothed,
	})
	if err != nil {
		monitoring.Logf("Failed to write to file: %v", err)
		res.Err = err
	}

	res.Published = true
	res.Rates = rates
	res.Smoothed = smoothed
	res.Encoded = enc

	if d.board != nil {
		d.board.Publish(status.Snapshot{
			UpdatedAt:   now,
			Cycles:      d.cycles,
			Misses:      d.misses,
			Samples:     d.buf.Len(),
			Distance:    dist,
			Short:       rates.Short,
			Mid:         rates.Mid,
			Long:        rates.Long,
			Smoothed:    smoothed,
			Encoded:     enc,
			FailedSlots: slot.FailedSlots(err),
			Window:      d.buf.All(),
		})
	}
	return res
}

// Run cycles every Interval until ctx is cancelled. Each wait is the
// interval minus the time the cycle took, never negative. On exit the slot
// files are closed and pending metric exports are awaited.
func (d *Daemon) Run(ctx context.Context) error {
	defer d.shutdown()

	for ctx.Err() == nil {
		start := d.clock.Now()
		d.Cycle(ctx)

		wait := max(0, d.opts.Interval-d.clock.Since(start))
		if err := d.clock.Sleep(ctx, wait); err != nil {
			break
		}
	}
	return nil
}

func (d *Daemon) shutdown() {
	if err := d.slots.Close(); err != nil {
		monitoring.Logf("Error closing slot files: %v", err)
	}
	if d.exporter != nil {
		d.exporter.Wait()
	}
}
