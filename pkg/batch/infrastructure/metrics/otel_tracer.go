package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
)

// InstrumentationName identifies the spans and instruments created by this package.
const InstrumentationName = "github.com/tigerroll/batchstate/pkg/batch"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer that starts its spans from provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(InstrumentationName)}
}

// StartJobSpan starts a new span for a JobExecution.
func (t *OpenTelemetryTracer) StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func()) {
	attrs := []attribute.KeyValue{
		attribute.String("job.name", jobNameOf(execution)),
		attribute.String("job.status", execution.Status().String()),
	}
	if execution.HasID() {
		attrs = append(attrs, attribute.Int64("job.execution.id", execution.ID()))
	}
	ctx, span := t.tracer.Start(ctx, "job "+jobNameOf(execution), trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// StartStepSpan starts a new span for a StepExecution.
func (t *OpenTelemetryTracer) StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func()) {
	attrs := []attribute.KeyValue{
		attribute.String("job.name", jobNameOf(execution.JobExecution())),
		attribute.String("step.name", execution.StepName()),
		attribute.String("step.status", execution.Status().String()),
	}
	if execution.HasID() {
		attrs = append(attrs, attribute.Int64("step.execution.id", execution.ID()))
	}
	ctx, span := t.tracer.Start(ctx, "step "+execution.StepName(), trace.WithAttributes(attrs...))
	return ctx, func() { span.End() }
}

// StartOperationSpan starts a new span for a repository call.
func (t *OpenTelemetryTracer) StartOperationSpan(ctx context.Context, operation string, attributes map[string]interface{}) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, operation, trace.WithAttributes(toAttributes(attributes)...))
	return ctx, func() { span.End() }
}

// RecordError records an error in the current span and marks the span as failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent records an event in the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

// toAttributes converts loosely typed values; anything unusual is rendered with %v.
func toAttributes(values map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(values))
	for k, v := range values {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprintf("%v", val)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
