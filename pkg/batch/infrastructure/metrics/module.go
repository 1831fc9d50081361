package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// Module provides a MetricRecorder and a Tracer chosen by configuration.
// It replaces the no-op core metrics module; an application includes one or the other.
var Module = fx.Options(
	fx.Provide(
		NewMetricRecorder,
		NewTracer,
	),
)

// NewMetricRecorder returns the recorder selected by cfg. Disabled metrics yield the no-op recorder.
// OTLP meter providers are flushed and shut down with the application.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.MetricsConfig, tracing *config.TracingConfig) (metrics.MetricRecorder, error) {
	if !cfg.Enabled || cfg.Exporter == config.ExporterNone {
		return metrics.NewNoOpMetricRecorder(), nil
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = config.DefaultMetricsNamespace
	}

	if cfg.Exporter == "" || cfg.Exporter == config.ExporterPrometheus {
		logger.Infof("Metrics: Prometheus recorder enabled (namespace=%s).", namespace)
		return NewPrometheusRecorder(namespace), nil
	}

	provider, err := NewMeterProvider(context.Background(), *cfg, tracing.ServiceName)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})
	logger.Infof("Metrics: OpenTelemetry recorder enabled (exporter=%s, namespace=%s).", cfg.Exporter, namespace)
	return NewOpenTelemetryRecorder(provider, namespace)
}

// NewTracer returns the tracer selected by cfg. Disabled tracing yields the no-op tracer.
func NewTracer(lc fx.Lifecycle, cfg *config.TracingConfig) (metrics.Tracer, error) {
	if !cfg.Enabled {
		return metrics.NewNoOpTracer(), nil
	}

	provider, err := NewTracerProvider(context.Background(), *cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return provider.Shutdown(ctx)
		},
	})
	logger.Infof("Tracing: OpenTelemetry tracer enabled (exporter=%s).", cfg.Exporter)
	return NewOpenTelemetryTracer(provider), nil
}
