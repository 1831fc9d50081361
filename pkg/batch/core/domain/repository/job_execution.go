package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// ErrJobExecutionNotFound is returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

func init() {
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
}

// JobExecutionDao persists job executions and their parameters.
type JobExecutionDao interface {
	// SaveJobExecution persists a new execution, assigning its id and setting its version to 0.
	SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateJobExecution persists the state of a saved execution. The version of jobExecution must
	// match the stored one; on success both are incremented.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// FindJobExecutions returns every execution of the instance, newest first.
	FindJobExecutions(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error)

	// GetLastJobExecution returns the most recent execution of the instance.
	GetLastJobExecution(ctx context.Context, jobInstance *model.JobInstance) (*model.JobExecution, error)

	// FindRunningJobExecutions returns the executions of jobName without an end time, newest first.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)

	// GetJobExecution finds an execution by id.
	GetJobExecution(ctx context.Context, executionID int64) (*model.JobExecution, error)

	// SynchronizeStatus refreshes status and version of jobExecution when the stored version differs.
	// The status is only ever upgraded.
	SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error
}
