package metrics

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder is an implementation of metrics.MetricRecorder that pushes
// through an OpenTelemetry MeterProvider.
type OpenTelemetryRecorder struct {
	jobStatus            metric.Int64Counter
	jobDuration          metric.Float64Histogram
	stepStatus           metric.Int64Counter
	stepDuration         metric.Float64Histogram
	stepItems            metric.Int64Counter
	operationDuration    metric.Float64Histogram
	operationErrors      metric.Int64Counter
	optimisticLockFailed metric.Int64Counter
	duration             metric.Float64Histogram
}

// NewOpenTelemetryRecorder creates the instruments on a meter of provider.
// Instrument names start with namespace.
func NewOpenTelemetryRecorder(provider metric.MeterProvider, namespace string) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(InstrumentationName)
	name := func(s string) string { return namespace + "." + s }

	var errs *multierror.Error
	counter := func(n, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name(n), metric.WithDescription(desc))
		errs = multierror.Append(errs, err)
		return c
	}
	histogram := func(n, desc string) metric.Float64Histogram {
		h, err := meter.Float64Histogram(name(n), metric.WithDescription(desc), metric.WithUnit("s"))
		errs = multierror.Append(errs, err)
		return h
	}

	r := &OpenTelemetryRecorder{
		jobStatus:            counter("job.status", "Job executions persisted, by status."),
		jobDuration:          histogram("job.duration", "Duration of finished job executions."),
		stepStatus:           counter("step.status", "Step executions persisted, by status."),
		stepDuration:         histogram("step.duration", "Duration of finished step executions."),
		stepItems:            counter("step.items", "Items handled by finished steps, by kind."),
		operationDuration:    histogram("repository.operation.duration", "Duration of job repository calls."),
		operationErrors:      counter("repository.operation.errors", "Failed job repository calls, by error kind."),
		optimisticLockFailed: counter("repository.optimistic_lock_failures", "Updates rejected because the entity was stale."),
		duration:             histogram("operation.duration", "Duration of other timed operations."),
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordJobStart implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatus.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("status", execution.Status().String())))
}

// RecordJobEnd implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	attrs := []attribute.KeyValue{
		attribute.String("job_name", jobNameOf(execution)),
		attribute.String("status", execution.Status().String()),
	}
	r.jobStatus.Add(ctx, 1, metric.WithAttributes(attrs...))
	if duration, ok := elapsed(execution.StartTime(), execution.EndTime()); ok {
		attrs = append(attrs, attribute.String("exit_code", execution.ExitStatus().ExitCode()))
		r.jobDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	}
}

// RecordStepStart implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatus.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", jobNameOf(execution.JobExecution())),
		attribute.String("step_name", execution.StepName()),
		attribute.String("status", execution.Status().String())))
}

// RecordStepEnd implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := attribute.String("job_name", jobNameOf(execution.JobExecution()))
	stepName := attribute.String("step_name", execution.StepName())
	status := attribute.String("status", execution.Status().String())
	r.stepStatus.Add(ctx, 1, metric.WithAttributes(jobName, stepName, status))

	items := map[string]int{
		"read":         execution.ReadCount(),
		"write":        execution.WriteCount(),
		"filter":       execution.FilterCount(),
		"read_skip":    execution.ReadSkipCount(),
		"process_skip": execution.ProcessSkipCount(),
		"write_skip":   execution.WriteSkipCount(),
	}
	for kind, n := range items {
		if n > 0 {
			r.stepItems.Add(ctx, int64(n), metric.WithAttributes(jobName, stepName, attribute.String("kind", kind)))
		}
	}
	if duration, ok := elapsed(execution.StartTime(), execution.EndTime()); ok {
		r.stepDuration.Record(ctx, duration, metric.WithAttributes(jobName, stepName, status,
			attribute.String("exit_code", execution.ExitStatus().ExitCode())))
	}
}

// RecordRepositoryOperation implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordRepositoryOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		r.operationErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("kind", errorKind(err))))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome)))
}

// RecordOptimisticLockFailure implements metrics.MetricRecorder.
func (r *OpenTelemetryRecorder) RecordOptimisticLockFailure(ctx context.Context, entity string) {
	r.optimisticLockFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("entity", entity)))
}

// RecordDuration implements metrics.MetricRecorder. Tags become attributes.
func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)
