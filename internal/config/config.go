package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/ratemeter/internal/metrics"
	"github.com/banshee-data/ratemeter/internal/rate"
	"github.com/banshee-data/ratemeter/internal/sensor"
	"github.com/banshee-data/ratemeter/internal/window"
)

// DefaultConfigPath is the path to the example configuration shipped with the repo.
const DefaultConfigPath = "config/ratemeter.defaults.json"

// Default values for fields omitted from the configuration file.
const (
	DefaultHost         = "http://ratos2.local"
	DefaultOutputDir    = "/home/pi/ratemeter"
	DefaultInterval     = time.Second
	DefaultFetchTimeout = 2 * time.Second
	DefaultPruneMaxAge  = 240 * time.Second
)

// Config is the daemon configuration. It is read once at startup.
// Every field is optional; the Get* accessors supply defaults.
type Config struct {
	// Sensor
	Host         *string `json:"host,omitempty"`
	QueryPath    *string `json:"query_path,omitempty"`
	FetchTimeout *string `json:"fetch_timeout,omitempty"` // duration string like "2s"

	// Output slots
	OutputDir  *string `json:"output_dir,omitempty"`
	FsyncSlots *bool   `json:"fsync_slots,omitempty"`

	// Cycle and windows
	Interval       *string `json:"interval,omitempty"` // duration string like "1s"
	ShortSamples   *int    `json:"short_samples,omitempty"`
	MidSamples     *int    `json:"mid_samples,omitempty"`
	LongSamples    *int    `json:"long_samples,omitempty"`
	SmoothingDepth *int    `json:"smoothing_depth,omitempty"`
	MinSamples     *int    `json:"min_samples,omitempty"`
	PruneMaxAge    *string `json:"prune_max_age,omitempty"` // duration string like "240s"

	// Metrics export
	MetricsEnabled     *bool    `json:"metrics_enabled,omitempty"`
	MetricsBatchSize   *int     `json:"metrics_batch_size,omitempty"`
	MetricsCommand     []string `json:"metrics_command,omitempty"`
	MetricsMeasurement *string  `json:"metrics_measurement,omitempty"`
	MetricsTimeout     *string  `json:"metrics_timeout,omitempty"`

	// Logging and status
	Verbose *bool   `json:"verbose,omitempty"`
	Quiet   *bool   `json:"quiet,omitempty"`
	Listen  *string `json:"listen,omitempty"`
}

// Helper functions to create pointers
func ptrBool(v bool) *bool       { return &v }
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// DefaultConfig returns a Config with every field populated from the defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:               ptrString(DefaultHost),
		QueryPath:          ptrString(sensor.DefaultQueryPath),
		FetchTimeout:       ptrString(DefaultFetchTimeout.String()),
		OutputDir:          ptrString(DefaultOutputDir),
		FsyncSlots:         ptrBool(false),
		Interval:           ptrString(DefaultInterval.String()),
		ShortSamples:       ptrInt(rate.DefaultShortSamples),
		MidSamples:         ptrInt(rate.DefaultMidSamples),
		LongSamples:        ptrInt(window.DefaultCapacity),
		SmoothingDepth:     ptrInt(rate.DefaultSmoothingDepth),
		MinSamples:         ptrInt(rate.DefaultMinSamples),
		PruneMaxAge:        ptrString(DefaultPruneMaxAge.String()),
		MetricsEnabled:     ptrBool(false),
		MetricsBatchSize:   ptrInt(metrics.DefaultBatchSize),
		MetricsCommand:     append([]string(nil), metrics.DefaultCommand...),
		MetricsMeasurement: ptrString(metrics.DefaultMeasurement),
		MetricsTimeout:     ptrString(metrics.DefaultTimeout.String()),
		Verbose:            ptrBool(false),
		Quiet:              ptrBool(false),
		Listen:             ptrString(""),
	}
}

// LoadConfig loads a Config from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	durations := []struct {
		name string
		val  *string
	}{
		{"interval", c.Interval},
		{"fetch_timeout", c.FetchTimeout},
		{"prune_max_age", c.PruneMaxAge},
		{"metrics_timeout", c.MetricsTimeout},
	}
	for _, d := range durations {
		if d.val == nil || *d.val == "" {
			continue
		}
		v, err := time.ParseDuration(*d.val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.val, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.val)
		}
	}

	counts := []struct {
		name string
		val  *int
	}{
		{"short_samples", c.ShortSamples},
		{"mid_samples", c.MidSamples},
		{"long_samples", c.LongSamples},
		{"smoothing_depth", c.SmoothingDepth},
		{"metrics_batch_size", c.MetricsBatchSize},
	}
	for _, n := range counts {
		if n.val != nil && *n.val < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", n.name, *n.val)
		}
	}

	if c.MinSamples != nil && *c.MinSamples < 2 {
		return fmt.Errorf("min_samples must be at least 2, got %d", *c.MinSamples)
	}

	short, mid, long := c.GetShortSamples(), c.GetMidSamples(), c.GetLongSamples()
	if short > mid || mid > long {
		return fmt.Errorf("horizons must satisfy short <= mid <= long, got %d/%d/%d", short, mid, long)
	}
	if c.GetMinSamples() > long {
		return fmt.Errorf("min_samples %d exceeds long_samples %d", c.GetMinSamples(), long)
	}

	if c.Host != nil && !strings.HasPrefix(*c.Host, "http://") && !strings.HasPrefix(*c.Host, "https://") {
		return fmt.Errorf("host must be an http(s) URL, got %q", *c.Host)
	}
	if c.OutputDir != nil && strings.TrimSpace(*c.OutputDir) == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if len(c.MetricsCommand) > 0 && strings.TrimSpace(c.MetricsCommand[0]) == "" {
		return fmt.Errorf("metrics_command must name a program")
	}
	if c.GetVerbose() && c.GetQuiet() {
		return fmt.Errorf("verbose and quiet are mutually exclusive")
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetHost returns the sensor host URL.
func (c *Config) GetHost() string { return stringOr(c.Host, DefaultHost) }

// GetQueryPath returns the beacon query path.
func (c *Config) GetQueryPath() string { return stringOr(c.QueryPath, sensor.DefaultQueryPath) }

// GetFetchTimeout returns the per-request sensor timeout.
func (c *Config) GetFetchTimeout() time.Duration {
	return durationOr(c.FetchTimeout, DefaultFetchTimeout)
}

// GetOutputDir returns the directory holding the slot files.
func (c *Config) GetOutputDir() string { return stringOr(c.OutputDir, DefaultOutputDir) }

// GetFsyncSlots reports whether slot writes are followed by fsync.
func (c *Config) GetFsyncSlots() bool { return boolOr(c.FsyncSlots, false) }

// GetInterval returns the cycle period.
func (c *Config) GetInterval() time.Duration { return durationOr(c.Interval, DefaultInterval) }

// GetShortSamples returns the short-horizon sample count.
func (c *Config) GetShortSamples() int { return intOr(c.ShortSamples, rate.DefaultShortSamples) }

// GetMidSamples returns the mid-horizon sample count.
func (c *Config) GetMidSamples() int { return intOr(c.MidSamples, rate.DefaultMidSamples) }

// GetLongSamples returns the long-horizon sample count, which is also the
// window capacity.
func (c *Config) GetLongSamples() int { return intOr(c.LongSamples, window.DefaultCapacity) }

// GetSmoothingDepth returns how many short-horizon estimates are averaged.
func (c *Config) GetSmoothingDepth() int {
	return intOr(c.SmoothingDepth, rate.DefaultSmoothingDepth)
}

// GetMinSamples returns the buffer size below which no rates are published.
func (c *Config) GetMinSamples() int { return intOr(c.MinSamples, rate.DefaultMinSamples) }

// GetPruneMaxAge returns the age beyond which samples are dropped during outages.
func (c *Config) GetPruneMaxAge() time.Duration {
	return durationOr(c.PruneMaxAge, DefaultPruneMaxAge)
}

// GetMetricsEnabled reports whether averaged readings are exported.
func (c *Config) GetMetricsEnabled() bool { return boolOr(c.MetricsEnabled, false) }

// GetMetricsBatchSize returns how many readings are averaged per record.
func (c *Config) GetMetricsBatchSize() int {
	return intOr(c.MetricsBatchSize, metrics.DefaultBatchSize)
}

// GetMetricsCommand returns the writer command and its arguments.
func (c *Config) GetMetricsCommand() []string {
	if len(c.MetricsCommand) == 0 {
		return append([]string(nil), metrics.DefaultCommand...)
	}
	return append([]string(nil), c.MetricsCommand...)
}

// GetMetricsMeasurement returns the line-protocol measurement name.
func (c *Config) GetMetricsMeasurement() string {
	return stringOr(c.MetricsMeasurement, metrics.DefaultMeasurement)
}

// GetMetricsTimeout bounds each writer invocation.
func (c *Config) GetMetricsTimeout() time.Duration {
	return durationOr(c.MetricsTimeout, metrics.DefaultTimeout)
}

// GetVerbose reports whether a rate line is logged every cycle.
func (c *Config) GetVerbose() bool { return boolOr(c.Verbose, false) }

// GetQuiet reports whether diagnostics are muted.
func (c *Config) GetQuiet() bool { return boolOr(c.Quiet, false) }

// GetListen returns the status server address; empty disables it.
func (c *Config) GetListen() string { return stringOr(c.Listen, "") }
