package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// Metrics live in a private registry exposed through Handler.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Job Metrics
	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec

	// Step Metrics
	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec
	stepReadCount       *prometheus.CounterVec
	stepWriteCount      *prometheus.CounterVec
	stepSkipCount       *prometheus.CounterVec

	// Repository Metrics
	operationSeconds     *prometheus.HistogramVec
	operationErrors      *prometheus.CounterVec
	optimisticLockFailed *prometheus.CounterVec
	durationSeconds      *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a PrometheusRecorder whose metric names start with namespace.
func NewPrometheusRecorder(namespace string) *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of finished job executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_code"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_status_total",
			Help:      "Job executions persisted, by status.",
		}, []string{"job_name", "status"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of finished step executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status", "exit_code"}),
		stepStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_status_total",
			Help:      "Step executions persisted, by status.",
		}, []string{"job_name", "step_name", "status"}),
		stepReadCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_read_total",
			Help:      "Items read by finished steps.",
		}, []string{"job_name", "step_name"}),
		stepWriteCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_write_total",
			Help:      "Items written by finished steps.",
		}, []string{"job_name", "step_name"}),
		stepSkipCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_skip_total",
			Help:      "Items skipped by finished steps.",
		}, []string{"job_name", "step_name", "type"}), // type: read, process, write
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_operation_duration_seconds",
			Help:      "Duration of job repository calls.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation", "outcome"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_operation_errors_total",
			Help:      "Failed job repository calls, by error kind.",
		}, []string{"operation", "kind"}),
		optimisticLockFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_optimistic_lock_failures_total",
			Help:      "Updates rejected because the entity was stale.",
		}, []string{"entity"}),
		durationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of other timed operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.stepDurationSeconds,
		r.stepStatusCounter,
		r.stepReadCount,
		r.stepWriteCount,
		r.stepSkipCount,
		r.operationSeconds,
		r.operationErrors,
		r.optimisticLockFailed,
		r.durationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func jobNameOf(execution *model.JobExecution) string {
	if execution == nil || execution.JobInstance() == nil {
		return ""
	}
	return execution.JobInstance().JobName()
}

func elapsed(start, end *time.Time) (float64, bool) {
	if start == nil || end == nil {
		return 0, false
	}
	return end.Sub(*start).Seconds(), true
}

// RecordJobStart records the creation of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(jobNameOf(execution), execution.Status().String()).Inc()
	logger.Debugf("Metrics: Job '%s' started.", jobNameOf(execution))
}

// RecordJobEnd records a JobExecution persisted with an end time.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	jobName := jobNameOf(execution)
	r.jobStatusCounter.WithLabelValues(jobName, execution.Status().String()).Inc()

	duration, ok := elapsed(execution.StartTime(), execution.EndTime())
	if !ok {
		return
	}
	r.jobDurationSeconds.WithLabelValues(jobName, execution.Status().String(), execution.ExitStatus().ExitCode()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", jobName, duration)
}

// RecordStepStart records the creation of a StepExecution.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	r.stepStatusCounter.WithLabelValues(jobNameOf(execution.JobExecution()), execution.StepName(), execution.Status().String()).Inc()
	logger.Debugf("Metrics: Step '%s' started.", execution.StepName())
}

// RecordStepEnd records a StepExecution persisted with an end time, adding its final counts.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := jobNameOf(execution.JobExecution())
	stepName := execution.StepName()
	r.stepStatusCounter.WithLabelValues(jobName, stepName, execution.Status().String()).Inc()
	r.stepReadCount.WithLabelValues(jobName, stepName).Add(float64(execution.ReadCount()))
	r.stepWriteCount.WithLabelValues(jobName, stepName).Add(float64(execution.WriteCount()))
	r.stepSkipCount.WithLabelValues(jobName, stepName, "read").Add(float64(execution.ReadSkipCount()))
	r.stepSkipCount.WithLabelValues(jobName, stepName, "process").Add(float64(execution.ProcessSkipCount()))
	r.stepSkipCount.WithLabelValues(jobName, stepName, "write").Add(float64(execution.WriteSkipCount()))

	duration, ok := elapsed(execution.StartTime(), execution.EndTime())
	if !ok {
		return
	}
	r.stepDurationSeconds.WithLabelValues(jobName, stepName, execution.Status().String(), execution.ExitStatus().ExitCode()).Observe(duration)
	logger.Debugf("Metrics: Step '%s' ended. Duration: %.3fs", stepName, duration)
}

// errorKind classifies err for the kind label.
func errorKind(err error) string {
	switch {
	case exception.IsOptimisticLockingFailure(err):
		return "optimistic_lock"
	case exception.IsIllegalArgument(err):
		return "illegal_argument"
	case exception.IsNoSuchJob(err):
		return "no_such_job"
	case errors.Is(err, exception.ErrJobExecutionAlreadyRunning),
		errors.Is(err, exception.ErrJobInstanceAlreadyComplete),
		errors.Is(err, exception.ErrJobRestart),
		errors.Is(err, exception.ErrJobExecutionNotRunning),
		errors.Is(err, exception.ErrJobExecutionNotStopped),
		errors.Is(err, exception.ErrNoSuchJobExecution):
		return "lifecycle"
	default:
		return "other"
	}
}

// RecordRepositoryOperation records the duration and outcome of a repository call.
func (r *PrometheusRecorder) RecordRepositoryOperation(ctx context.Context, operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
		r.operationErrors.WithLabelValues(operation, errorKind(err)).Inc()
	}
	r.operationSeconds.WithLabelValues(operation, outcome).Observe(duration.Seconds())
}

// RecordOptimisticLockFailure counts a rejected stale update.
func (r *PrometheusRecorder) RecordOptimisticLockFailure(ctx context.Context, entity string) {
	r.optimisticLockFailed.WithLabelValues(entity).Inc()
}

// RecordDuration records the execution time of a named operation. Tags are not used as labels
// because their keys vary per call.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.durationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
