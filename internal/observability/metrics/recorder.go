package metrics

import (
	"github.com/parlorchat/parlor/internal/observability/statsd"
)

// SessionRecorder receives session coordinator measurements.
type SessionRecorder interface {
	RecordOperation(m OperationMetric)
	RecordEnrichment(m EnrichmentMetric)
	RecordTransition(status string)
}

// NopRecorder discards every measurement.
type NopRecorder struct{}

func (NopRecorder) RecordOperation(OperationMetric)   {}
func (NopRecorder) RecordEnrichment(EnrichmentMetric) {}
func (NopRecorder) RecordTransition(string)           {}

// StatsdRecorder forwards measurements to a StatsD sink.
type StatsdRecorder struct {
	Sink statsd.Sink
}

func (r StatsdRecorder) RecordOperation(m OperationMetric)   { EmitOperation(r.Sink, m) }
func (r StatsdRecorder) RecordEnrichment(m EnrichmentMetric) { EmitEnrichment(r.Sink, m) }
func (r StatsdRecorder) RecordTransition(status string)      { EmitTransition(r.Sink, status) }

// MultiRecorder fans measurements out to several recorders.
type MultiRecorder []SessionRecorder

// Combine returns a recorder for the non-nil recorders given.
func Combine(recorders ...SessionRecorder) SessionRecorder {
	out := make(MultiRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return NopRecorder{}
	case 1:
		return out[0]
	}
	return out
}

func (m MultiRecorder) RecordOperation(op OperationMetric) {
	for _, r := range m {
		r.RecordOperation(op)
	}
}

func (m MultiRecorder) RecordEnrichment(e EnrichmentMetric) {
	for _, r := range m {
		r.RecordEnrichment(e)
	}
}

func (m MultiRecorder) RecordTransition(status string) {
	for _, r := range m {
		r.RecordTransition(status)
	}
}
