package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultHTTPPort          = 8080
	DefaultScrapeInterval    = 15 * time.Second
	DefaultBroadcastInterval = 5 * time.Second
	DefaultSmoothingFactor   = 0.6
	DefaultComputeTimeout    = 5 * time.Second
)

// Config is the top-level scalarboard configuration. Fields map 1:1 to
// config.example.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Ingest IngestConfig `yaml:"ingest"`
	Engine EngineConfig `yaml:"engine"`
}

// ServerConfig holds the serving-surface settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on.
	HTTPPort int `yaml:"http_port"`

	// BroadcastInterval controls how often refreshed chart snapshots are
	// pushed to connected WebSocket clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// IngestConfig holds the sample-collection settings.
type IngestConfig struct {
	// ScrapeInterval controls how often each source is polled.
	ScrapeInterval time.Duration `yaml:"scrape_interval"`

	// Sources is the list of runs to collect scalars from.
	Sources []Source `yaml:"sources"`
}

// Source describes one run's metrics endpoint.
type Source struct {
	// Run is the unique, human-readable run name.
	Run string `yaml:"run"`

	// Endpoint is the full URL of the run's metrics endpoint
	// (Prometheus text exposition format).
	Endpoint string `yaml:"endpoint"`

	// Metrics maps chart tags to the metric family that feeds them,
	// e.g. "loss" -> "training_loss".
	Metrics map[string]string `yaml:"metrics"`

	// StepMetric optionally names a counter that carries the run's
	// global step. When empty, scrape count is used as the step.
	StepMetric string `yaml:"step_metric"`
}

// EngineConfig holds the compute-engine settings.
type EngineConfig struct {
	// SmoothingFactor is the default EWMA weight, in [0,1).
	SmoothingFactor float64 `yaml:"smoothing_factor"`

	// ExcludeOutliers enables percentile trimming of the y-axis range.
	ExcludeOutliers bool `yaml:"exclude_outliers"`

	// ComputeTimeout is the defensive per-request ceiling before a
	// dispatch falls back to synchronous computation.
	ComputeTimeout time.Duration `yaml:"compute_timeout"`

	// DisableAccelerated / DisableWorker narrow the backend fallback
	// chain, mainly for constrained deployments and debugging.
	DisableAccelerated bool `yaml:"disable_accelerated"`
	DisableWorker      bool `yaml:"disable_worker"`

	// BlockSize and MaxPointsPerSeries tune the series store; zero
	// selects the store's defaults.
	BlockSize          int `yaml:"block_size"`
	MaxPointsPerSeries int `yaml:"max_points_per_series"`
}

// Load reads, parses, and validates the config file at path, applying
// defaults for absent fields.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = DefaultHTTPPort
	}
	if c.Server.BroadcastInterval == 0 {
		c.Server.BroadcastInterval = DefaultBroadcastInterval
	}
	if c.Ingest.ScrapeInterval == 0 {
		c.Ingest.ScrapeInterval = DefaultScrapeInterval
	}
	if c.Engine.SmoothingFactor == 0 {
		c.Engine.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.Engine.ComputeTimeout == 0 {
		c.Engine.ComputeTimeout = DefaultComputeTimeout
	}
}

func (c *Config) validate() error {
	if c.Engine.SmoothingFactor < 0 || c.Engine.SmoothingFactor >= 1 {
		return fmt.Errorf("config: smoothing_factor %v outside [0,1)", c.Engine.SmoothingFactor)
	}
	seen := make(map[string]struct{}, len(c.Ingest.Sources))
	for i, src := range c.Ingest.Sources {
		if src.Run == "" {
			return fmt.Errorf("config: source %d: run name is required", i)
		}
		if _, dup := seen[src.Run]; dup {
			return fmt.Errorf("config: duplicate run name %q", src.Run)
		}
		seen[src.Run] = struct{}{}
		if src.Endpoint == "" {
			return fmt.Errorf("config: source %q: endpoint is required", src.Run)
		}
		if len(src.Metrics) == 0 {
			return fmt.Errorf("config: source %q: at least one metric mapping is required", src.Run)
		}
	}
	return nil
}
