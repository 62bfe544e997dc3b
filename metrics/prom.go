package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink counts check results and observes their duration.
type PromSink struct {
	checks   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	gatherer prometheus.Gatherer
}

// NewPromSinkWithRegistry registers check metrics on reg. A nil registry
// defaults to a fresh one.
func NewPromSinkWithRegistry(reg *prometheus.Registry) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	checks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "open3e_harness_checks_total",
		Help: "Total number of fixture checks",
	}, []string{"transport", "ecu", "passed"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "open3e_harness_check_duration_seconds",
		Help:    "Time between issuing a request and receiving its value",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport"})

	if err := reg.Register(checks); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			checks = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			duration = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	return &PromSink{checks: checks, duration: duration, gatherer: reg}, nil
}

// RecordCheckResults increments the counter and observes the duration of each
// result.
func (s *PromSink) RecordCheckResults(res []CheckResult) error {
	for _, r := range res {
		s.checks.WithLabelValues(string(r.Transport), r.ECU, strconv.FormatBool(r.Passed)).Inc()
		s.duration.WithLabelValues(string(r.Transport)).Observe(r.Duration.Seconds())
	}
	return nil
}

// WriteTextfile exports the registry in the node-exporter textfile format.
func (s *PromSink) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, s.gatherer)
}
