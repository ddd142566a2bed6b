package metrics

import (
	"time"

	obserrors "github.com/parlorchat/parlor/internal/observability/errors"
	"github.com/parlorchat/parlor/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultMissing = "missing"
	ResultStale   = "stale"
)

// OperationMetric captures a login, register, or logout attempt.
type OperationMetric struct {
	Operation string
	Result    string
	ErrorKind string
	Duration  time.Duration
	Err       error
}

// EnrichmentMetric captures one profile enrichment attempt.
type EnrichmentMetric struct {
	Result   string
	Duration time.Duration
	Err      error
}

// EmitOperation emits standardised session operation metrics.
func EmitOperation(sink statsd.Sink, in OperationMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}
	if in.ErrorKind != "" {
		tags["error_kind"] = in.ErrorKind
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("session.operation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.operation.duration", in.Duration, CloneTags(tags))
	}
}

// EmitEnrichment emits profile enrichment metrics.
func EmitEnrichment(sink statsd.Sink, in EnrichmentMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("session.enrichment", 1, tags)
	if in.Duration > 0 {
		sink.Timing("session.enrichment.duration", in.Duration, CloneTags(tags))
	}
}

// EmitTransition counts a status change of the session state.
func EmitTransition(sink statsd.Sink, status string) {
	if sink == nil {
		return
	}
	sink.Count("session.transition", 1, map[string]string{"status": status})
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
