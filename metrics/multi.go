package metrics

// MultiSink fanouts check results to multiple sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordCheckResults forwards the results to all sinks, returning the first error encountered.
func (m *MultiSink) RecordCheckResults(res []CheckResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordCheckResults(res); err != nil {
			return err
		}
	}
	return nil
}
