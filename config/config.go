// Package config loads orchestrator settings from an optional
// .testpilot.yaml file, falling back to coded defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/testpilot/testpilot/store"
)

// DefaultFile is the config file looked up in the working directory
// when no explicit path is given.
const DefaultFile = ".testpilot.yaml"

// Config holds the orchestrator defaults that are not per-invocation
// flags.
type Config struct {
	// Workers is the default worker pool size.
	Workers int `yaml:"workers"`
	// RetryBudget is the number of extra attempts for flaky tests.
	RetryBudget int `yaml:"retry_budget"`
	// FlakyThreshold is the flakiness score that reclassifies a test.
	FlakyThreshold float64 `yaml:"flaky_threshold"`
	// FlakyMinRuns gates the historical override.
	FlakyMinRuns int `yaml:"flaky_min_runs"`
	// StorePath is the result store location.
	StorePath string `yaml:"store_path"`
	// LookbackDays is the default analytics window.
	LookbackDays int `yaml:"lookback_days"`
	// SlowTop is how many slow tests reports list.
	SlowTop int `yaml:"slow_top"`
	// TestTimeout bounds one test invocation; 0 disables.
	TestTimeout time.Duration `yaml:"test_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Workers:        4,
		RetryBudget:    2,
		FlakyThreshold: 0.2,
		FlakyMinRuns:   5,
		StorePath:      store.DefaultPath,
		LookbackDays:   30,
		SlowTop:        10,
		TestTimeout:    0,
	}
}

// Load reads the config at path. An empty path means the default file,
// which may be absent; an explicitly named file must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry_budget must not be negative, got %d", c.RetryBudget)
	}
	if c.FlakyThreshold < 0 || c.FlakyThreshold > 1 {
		return fmt.Errorf("flaky_threshold must be in [0,1], got %g", c.FlakyThreshold)
	}
	if c.LookbackDays < 1 {
		return fmt.Errorf("lookback_days must be positive, got %d", c.LookbackDays)
	}
	return nil
}
