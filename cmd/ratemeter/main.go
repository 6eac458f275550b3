package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/ratemeter/internal/config"
	"github.com/banshee-data/ratemeter/internal/daemon"
	"github.com/banshee-data/ratemeter/internal/fsutil"
	"github.com/banshee-data/ratemeter/internal/httputil"
	"github.com/banshee-data/ratemeter/internal/metrics"
	"github.com/banshee-data/ratemeter/internal/monitoring"
	"github.com/banshee-data/ratemeter/internal/rate"
	"github.com/banshee-data/ratemeter/internal/sensor"
	"github.com/banshee-data/ratemeter/internal/slot"
	"github.com/banshee-data/ratemeter/internal/status"
	"github.com/banshee-data/ratemeter/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to JSON config file (defaults are used when empty)")
	logRates    = flag.Bool("log", false, "Log the rates computed every cycle")
	quiet       = flag.Bool("quiet", false, "Suppress diagnostic logging")
	metricsOn   = flag.Bool("metrics", false, "Export averaged distances through the metrics command")
	listen      = flag.String("listen", "", "Status server listen address, e.g. :8090 (disabled when empty)")
	host        = flag.String("host", config.DefaultHost, "Sensor host URL")
	outputDir   = flag.String("output-dir", config.DefaultOutputDir, "Directory holding the slot files")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	applyFlags(cfg, visitedFlags())
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	monitoring.SetQuiet(cfg.GetQuiet())
	monitoring.SetVerbose(cfg.GetVerbose())

	instanceID := uuid.NewString()
	log.Printf("%s starting, instance %s", version.String(), instanceID)

	slots, err := slot.OpenSet(fsutil.OSFileSystem{}, cfg.GetOutputDir(), cfg.GetFsyncSlots())
	if err != nil {
		log.Fatalf("failed to initialise slot files: %v", err)
	}

	beacon := sensor.NewBeacon(
		httputil.NewStandardClient(cfg.GetFetchTimeout()),
		cfg.GetHost(), cfg.GetQueryPath(), cfg.GetFetchTimeout(),
	)
	log.Printf("polling %s every %s, writing to %s", beacon.URL(), cfg.GetInterval(), cfg.GetOutputDir())

	deps := daemon.Deps{
		Source: beacon,
		Slots:  slots,
		Board:  status.NewBoard(instanceID),
	}
	if cfg.GetMetricsEnabled() {
		exporter, err := metrics.NewCommandExporter(nil, cfg.GetMetricsCommand(), cfg.GetMetricsTimeout())
		if err != nil {
			log.Fatalf("failed to configure metrics: %v", err)
		}
		deps.Exporter = exporter
		deps.Batcher = metrics.NewBatcher(exporter, cfg.GetMetricsMeasurement(), cfg.GetMetricsBatchSize())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if addr := cfg.GetListen(); addr != "" {
		srv := status.NewServer(addr, deps.Board)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.Printf("status server error: %v", err)
			}
		}()
	}

	if err := daemon.New(optionsFromConfig(cfg), deps).Run(ctx); err != nil {
		log.Printf("daemon stopped: %v", err)
	}
	wg.Wait()
	log.Printf("ratemeter stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}

func visitedFlags() map[string]bool {
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags copies explicitly set command-line flags over cfg.
func applyFlags(cfg *config.Config, set map[string]bool) {
	if set["log"] {
		v := *logRates
		cfg.Verbose = &v
	}
	if set["quiet"] {
		v := *quiet
		cfg.Quiet = &v
	}
	if set["metrics"] {
		v := *metricsOn
		cfg.MetricsEnabled = &v
	}
	if set["listen"] {
		v := *listen
		cfg.Listen = &v
	}
	if set["host"] {
		v := *host
		cfg.Host = &v
	}
	if set["output-dir"] {
		v := *outputDir
		cfg.OutputDir = &v
	}
}

func optionsFromConfig(cfg *config.Config) daemon.Options {
	return daemon.Options{
		Interval: cfg.GetInterval(),
		Horizons: rate.Horizons{
			Short: cfg.GetShortSamples(),
			Mid:   cfg.GetMidSamples(),
			Long:  cfg.GetLongSamples(),
		},
		MinSamples:     cfg.GetMinSamples(),
		SmoothingDepth: cfg.GetSmoothingDepth(),
		PruneMaxAge:    cfg.GetPruneMaxAge(),
	}
}
