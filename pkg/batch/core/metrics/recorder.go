package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// MetricRecorder records metrics about the executions the job repository persists
// and about the repository calls themselves.
//
// Implementations must be safe for concurrent use.
type MetricRecorder interface {
	// RecordJobStart records that a JobExecution was created.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)

	// RecordJobEnd records a JobExecution that was persisted with an end time.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)

	// RecordStepStart records that a StepExecution was added.
	RecordStepStart(ctx context.Context, execution *model.StepExecution)

	// RecordStepEnd records a StepExecution that was persisted with an end time.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	// RecordRepositoryOperation records one repository call.
	//
	// operation: The name of the call, e.g. "CreateJobExecution".
	// duration: How long the call took.
	// err: The error it returned, or nil.
	RecordRepositoryOperation(ctx context.Context, operation string, duration time.Duration, err error)

	// RecordOptimisticLockFailure records a rejected update of a stale entity.
	//
	// entity: "job execution" or "step execution".
	RecordOptimisticLockFailure(ctx context.Context, entity string)

	// RecordDuration records the execution time of an arbitrary operation.
	//
	// tags: Additional labels, e.g. `{"command": "restart"}`.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
