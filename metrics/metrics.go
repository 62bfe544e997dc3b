// Package metrics records the outcome of fixture checks. Sinks mirror the
// results to Prometheus (scraped or exported as a node-exporter textfile) and
// InfluxDB so runs against the simulated ECUs can be compared over time.
package metrics

import "time"

// Transport names how a value was obtained from the tool.
type Transport string

const (
	TransportCLI  Transport = "cli"
	TransportMQTT Transport = "mqtt"
)

// CheckResult is the outcome of comparing one fixture record.
type CheckResult struct {
	ECU       string
	DID       int
	Transport Transport
	Expected  string
	Actual    string
	Passed    bool
	// Err holds the harness error that prevented a comparison, if any.
	Err      string
	Duration time.Duration
	Time     time.Time
}

// Sink records check results for observability purposes.
type Sink interface {
	RecordCheckResults(results []CheckResult) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordCheckResults([]CheckResult) error { return nil }

// Config defines settings for metrics sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	TextfilePath      string `json:"textfile_path"`
	JUnitPath         string `json:"junit_path"`
	ExportPath        string `json:"export_path"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}
