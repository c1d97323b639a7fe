package config

import (
	"fmt"
	"os"
	"time"

	"srtfsched/logging"

	"gopkg.in/yaml.v3"
)

// Backends which can pause and resume workers.
const (
	BackendSignal = "signal"
	BackendCgroup = "cgroup"
)

// Config holds the settings of one scheduling run.
type Config struct {
	// TickInterval is the length of one simulated time unit.
	TickInterval time.Duration `yaml:"tick_interval"`

	// WorkerPath is the worker executable launched for every job.
	WorkerPath string `yaml:"worker_path"`

	// MaxJobs is the largest workload accepted.
	MaxJobs int `yaml:"max_jobs"`

	// Backend selects how workers are paused and resumed: "signal" or "cgroup".
	Backend string `yaml:"backend"`

	// OutputDir, if set, collects one output file per worker instead of sharing stdout.
	OutputDir string `yaml:"output_dir"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// HealthAddr, if set, is the host:port on which the gRPC health service listens.
	HealthAddr string `yaml:"health_addr"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		TickInterval: time.Second,
		WorkerPath:   "./worker",
		MaxJobs:      256,
		Backend:      BackendSignal,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads a YAML config file from the given path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("invalid tick_interval %v: must be positive", c.TickInterval)
	}
	if c.WorkerPath == "" {
		return fmt.Errorf("invalid worker_path: cannot be empty")
	}
	if c.MaxJobs < 1 {
		return fmt.Errorf("invalid max_jobs %d: must be at least 1", c.MaxJobs)
	}
	switch c.Backend {
	case BackendSignal, BackendCgroup:
	default:
		return fmt.Errorf("invalid backend %q: must be %q or %q", c.Backend, BackendSignal, BackendCgroup)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if !logging.ValidFormat(c.LogFormat) {
		return fmt.Errorf("invalid log_format %q: must be %q or %q", c.LogFormat, logging.FormatText, logging.FormatJSON)
	}
	return nil
}
