package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/mqtt"
	"github.com/kilianp07/open3e-harness/open3e"
	"github.com/kilianp07/open3e-harness/pkg/export"
)

// EnvPrefix marks environment variables that override file values.
// HARNESS_MQTT__PORT=1884 sets mqtt.port.
const EnvPrefix = "HARNESS_"

type Config struct {
	Tool    open3e.Config  `json:"tool"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Wait    WaitConfig     `json:"wait"`
	Dataset DatasetConfig  `json:"dataset"`
	Report  metrics.Config `json:"report"`
	Logging LoggingConfig  `json:"logging"`
}

// Load reads path and applies environment overrides. An empty path loads
// defaults and environment values only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider(EnvPrefix, "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Tool.SetDefaults()
	c.MQTT.SetDefaults()
	c.Wait.SetDefaults()
	c.Dataset.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Tool.Validate(); err != nil {
		return fmt.Errorf("tool: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Wait.Validate(); err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if c.Report.InfluxEnabled && c.Report.InfluxURL == "" {
		return fmt.Errorf("report: influx_url is required when influx is enabled")
	}
	if c.Report.ExportPath != "" && !export.Supported(c.Report.ExportPath) {
		return fmt.Errorf("report: export_path must end in .csv or .json")
	}
	return nil
}
