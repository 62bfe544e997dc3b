package scenarios

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/open3e-harness/metrics"
	"github.com/kilianp07/open3e-harness/mqtt"
)

// Expect names one value a step must produce. An empty Value means the
// fixture value of DID.
type Expect struct {
	DID    int    `yaml:"did"`
	Suffix string `yaml:"suffix,omitempty"`
	Value  string `yaml:"value,omitempty"`
}

// Step is one request against the tool.
type Step struct {
	Name      string   `yaml:"name"`
	Transport string   `yaml:"transport"`
	Mode      string   `yaml:"mode,omitempty"`
	ECU       string   `yaml:"ecu"`
	DIDs      []int    `yaml:"dids"`
	SubPath   []string `yaml:"sub_path,omitempty"`
	// Suffix is appended to every subscription, e.g. "/#".
	Suffix string `yaml:"suffix,omitempty"`
	// Messages is the number of messages to wait for, len(Expect) by default.
	Messages int      `yaml:"messages,omitempty"`
	Expect   []Expect `yaml:"expect"`
}

type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	for i := range sc.Steps {
		sc.Steps[i].setDefaults()
		if err := sc.Steps[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: step %d: %w", path, i, err)
		}
	}
	return &sc, nil
}

func (s *Step) setDefaults() {
	if s.Mode == "" {
		s.Mode = string(mqtt.ModeReadJSON)
	}
	if s.Messages == 0 {
		s.Messages = len(s.Expect)
	}
}

// Validate checks the step is runnable.
func (s Step) Validate() error {
	switch metrics.Transport(s.Transport) {
	case metrics.TransportCLI:
		if _, err := cliArgs(s.Mode); err != nil {
			return err
		}
	case metrics.TransportMQTT:
		if _, err := parseMode(s.Mode); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown transport %q", s.Transport)
	}
	if s.ECU == "" {
		return fmt.Errorf("ecu is required")
	}
	if len(s.DIDs) == 0 {
		return fmt.Errorf("at least one did is required")
	}
	if len(s.SubPath) > 0 && len(s.DIDs) != 1 {
		return fmt.Errorf("sub_path needs exactly one did")
	}
	if len(s.Expect) == 0 {
		return fmt.Errorf("no expectations")
	}
	for _, e := range s.Expect {
		if e.Value == "" && (len(s.SubPath) > 0 || e.Suffix != "") {
			return fmt.Errorf("did %d: value is required for sub fields", e.DID)
		}
	}
	return nil
}

func parseMode(mode string) (mqtt.Mode, error) {
	switch m := mqtt.Mode(mode); m {
	case mqtt.ModeRead, mqtt.ModeReadJSON, mqtt.ModeReadRaw:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", mode)
	}
}

func cliArgs(mode string) ([]string, error) {
	switch mqtt.Mode(mode) {
	case mqtt.ModeReadJSON:
		return nil, nil
	case mqtt.ModeReadRaw:
		return []string{"--raw"}, nil
	default:
		return nil, fmt.Errorf("mode %q is not available on the command line", mode)
	}
}
