package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/ratemeter/internal/monitoring"
)

// Defaults mirror the influx helper the gantry deployment uses.
const (
	DefaultMeasurement = "gantry"
	DefaultBatchSize   = 5
	DefaultTimeout     = 10 * time.Second
)

// DefaultCommand writes one line-protocol record from stdin to the gantry bucket.
var DefaultCommand = []string{"python3", "influx_write_by_line.py", "--bucket", "gantry"}

// Sink accepts a finished line-protocol record.
type Sink interface {
	Export(line string)
}

// CommandExporter pipes each record to a fresh writer process. Exports run
// in the background; failures are logged and otherwise ignored.
type CommandExporter struct {
	builder CommandBuilder
	command []string
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewCommandExporter creates an exporter running command for every record.
func NewCommandExporter(builder CommandBuilder, command []string, timeout time.Duration) (*CommandExporter, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, errors.New("metrics command is empty")
	}
	if builder == nil {
		builder = RealCommandBuilder{}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandExporter{builder: builder, command: command, timeout: timeout}, nil
}

// Export starts the writer for line and returns without waiting for it.
func (e *CommandExporter) Export(line string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.run(line); err != nil {
			monitoring.Logf("Error calling %s: %v", e.command[0], err)
		}
	}()
}

func (e *CommandExporter) run(line string) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	cmd := e.builder.BuildCommand(ctx, e.command[0], e.command[1:]...)
	cmd.SetStdin([]byte(line))
	out, err := cmd.Run()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Wait blocks until every started export has finished.
func (e *CommandExporter) Wait() {
	e.wg.Wait()
}

// Batcher averages every size readings into one record for its Sink.
type Batcher struct {
	sink        Sink
	size        int
	measurement string
	pending     []float64
}

// NewBatcher creates a Batcher. A non-positive size uses DefaultBatchSize.
func NewBatcher(sink Sink, measurement string, size int) *Batcher {
	if size < 1 {
		size = DefaultBatchSize
	}
	if measurement == "" {
		measurement = DefaultMeasurement
	}
	return &Batcher{
		sink:        sink,
		size:        size,
		measurement: measurement,
		pending:     make([]float64, 0, size),
	}
}

// Add queues a reading taken at now. When the batch fills, its mean is sent
// to the sink stamped with now, and the batch restarts.
func (b *Batcher) Add(now time.Time, distance float64) (string, bool) {
	b.pending = append(b.pending, distance)
	if len(b.pending) < b.size {
		return "", false
	}

	line := FormatLine(b.measurement, stat.Mean(b.pending, nil), now)
	b.pending = b.pending[:0]
	b.sink.Export(line)
	return line, true
}

// Pending returns the number of readings waiting for the batch to fill.
func (b *Batcher) Pending() int { return len(b.pending) }

// FormatLine renders a line-protocol record for one distance value.
func FormatLine(measurement string, distance float64, at time.Time) string {
	return fmt.Sprintf("%s distance=%.6f %d", measurement, distance, at.UnixNano())
}
