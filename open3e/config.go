package open3e

import (
	"fmt"
	"time"
)

// Config describes how the tool is invoked.
type Config struct {
	// Command launches the tool, e.g. ["python3", "-m", "open3e.Open3Eclient"].
	Command             []string `json:"command"`
	CANInterface        string   `json:"can_interface"`
	DeviceConfig        string   `json:"device_config"`
	WorkDir             string   `json:"work_dir"`
	Env                 []string `json:"env"`
	RunTimeoutSeconds   int      `json:"run_timeout_seconds"`
	GraceTimeoutSeconds int      `json:"grace_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if len(c.Command) == 0 {
		c.Command = []string{"python3", "-m", "open3e.Open3Eclient"}
	}
	if c.CANInterface == "" {
		c.CANInterface = "vcan0"
	}
	if c.RunTimeoutSeconds == 0 {
		c.RunTimeoutSeconds = 10
	}
	if c.GraceTimeoutSeconds == 0 {
		c.GraceTimeoutSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if len(c.Command) == 0 || c.Command[0] == "" {
		return fmt.Errorf("tool command is required")
	}
	if c.CANInterface == "" {
		return fmt.Errorf("can interface is required")
	}
	if c.RunTimeoutSeconds < 0 || c.GraceTimeoutSeconds < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Prefix returns the command prefix shared by every invocation.
func (c Config) Prefix() []string {
	prefix := append([]string{}, c.Command...)
	prefix = append(prefix, "-c", c.CANInterface)
	if c.DeviceConfig != "" {
		prefix = append(prefix, "-cnfg", c.DeviceConfig)
	}
	return prefix
}

// RunTimeout bounds one-shot invocations.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

// GraceTimeout bounds bridge shutdown.
func (c Config) GraceTimeout() time.Duration {
	return time.Duration(c.GraceTimeoutSeconds) * time.Second
}
