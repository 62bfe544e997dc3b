package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/open3e-harness/wait"
)

// WaitConfig bounds the polling waits used while verifying.
type WaitConfig struct {
	TimeoutMS      int `json:"timeout_ms"`
	PollIntervalMS int `json:"poll_interval_ms"`
}

// SetDefaults applies sane defaults.
func (c *WaitConfig) SetDefaults() {
	if c.TimeoutMS == 0 {
		c.TimeoutMS = int(wait.DefaultTimeout / time.Millisecond)
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = int(wait.DefaultInterval / time.Millisecond)
	}
}

// Validate checks mandatory fields.
func (c WaitConfig) Validate() error {
	if c.TimeoutMS < 0 || c.PollIntervalMS < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

func (c WaitConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

func (c WaitConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// DatasetConfig locates the fixture file.
type DatasetConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *DatasetConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "test/test_data/read.json"
	}
}
