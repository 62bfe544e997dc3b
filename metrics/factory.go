package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Sinks is the set of sinks built from a Config.
type Sinks struct {
	Sink Sink
	// Prom is nil unless Prometheus is enabled.
	Prom   *PromSink
	influx *InfluxSink
}

// NewSinks builds the sinks enabled in cfg. Prometheus metrics are registered
// on reg.
func NewSinks(cfg Config, reg *prometheus.Registry) (*Sinks, error) {
	out := &Sinks{}
	var sinks []Sink
	if cfg.PrometheusEnabled || cfg.TextfilePath != "" {
		prom, err := NewPromSinkWithRegistry(reg)
		if err != nil {
			return nil, err
		}
		out.Prom = prom
		sinks = append(sinks, prom)
	}
	if cfg.InfluxEnabled {
		sink := NewInfluxSinkWithFallback(cfg)
		if is, ok := sink.(*InfluxSink); ok {
			out.influx = is
		}
		sinks = append(sinks, sink)
	}
	switch len(sinks) {
	case 0:
		out.Sink = NopSink{}
	case 1:
		out.Sink = sinks[0]
	default:
		out.Sink = NewMultiSink(sinks...)
	}
	return out, nil
}

// Close releases sink resources.
func (s *Sinks) Close() {
	if s.influx != nil {
		s.influx.Close()
	}
}
