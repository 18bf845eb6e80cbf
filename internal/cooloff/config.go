package cooloff

import (
	"time"

	"github.com/smallbiznis/numberpool/internal/config"
)

// Config controls how often the sweeper runs and how much it touches per batch.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: 24 * time.Hour,
		BatchSize:   100,
		JobTimeout:  10 * time.Minute,
	}
}

// ProvideConfig maps the application config onto the sweeper config.
func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.Lifecycle.SweepEnabled,
		RunInterval: cfg.Lifecycle.SweepInterval,
		BatchSize:   cfg.Lifecycle.SweepBatchSize,
		JobTimeout:  cfg.Lifecycle.SweepJobTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
