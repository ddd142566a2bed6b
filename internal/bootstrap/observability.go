package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/parlorchat/parlor/config"
	"github.com/parlorchat/parlor/internal/observability/metrics"
	"github.com/parlorchat/parlor/internal/observability/statsd"
	"github.com/parlorchat/parlor/internal/observability/tracing"
)

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Recorder    metrics.SessionRecorder
	MetricsSink *statsd.Client
	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics

	shutdownTracing func(context.Context) error
}

// BuildObservability configures metrics sinks and tracing.
// A statsd dial failure is logged and metrics continue without it.
func BuildObservability(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.ObservabilityConfig,
) (ObservabilityContainer, error) {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	out := ObservabilityContainer{shutdownTracing: func(context.Context) error { return nil }}
	var recorders []metrics.SessionRecorder

	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(ctx, statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.ErrorContext(ctx, "failed to initialise statsd client", "error", err)
		} else {
			out.MetricsSink = client
			recorders = append(recorders, metrics.StatsdRecorder{Sink: client})
		}
	}

	if cfg.Prometheus.Enabled {
		reg := prometheus.NewRegistry()
		if err := reg.Register(collectors.NewGoCollector()); err != nil {
			return out, fmt.Errorf("register go collector: %w", err)
		}
		if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return out, fmt.Errorf("register process collector: %w", err)
		}
		rec, err := metrics.NewPrometheusRecorder(reg)
		if err != nil {
			return out, fmt.Errorf("register session metrics: %w", err)
		}
		httpMetrics, err := metrics.NewHTTPMetrics(reg)
		if err != nil {
			return out, fmt.Errorf("register http metrics: %w", err)
		}
		out.Registry = reg
		out.HTTPMetrics = httpMetrics
		recorders = append(recorders, rec)
	}

	out.Recorder = metrics.Combine(recorders...)

	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return out, fmt.Errorf("setup tracing: %w", err)
	}
	out.shutdownTracing = shutdown
	if cfg.Tracing.Enabled {
		obsLogger.InfoContext(ctx, "tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	return out, nil
}

// Close flushes spans and releases the statsd connection.
func (o ObservabilityContainer) Close(ctx context.Context) error {
	var errs []error
	if o.shutdownTracing != nil {
		if err := o.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if err := o.MetricsSink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close statsd: %w", err))
	}
	return errors.Join(errs...)
}
