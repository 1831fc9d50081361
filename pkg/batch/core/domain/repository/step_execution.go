package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// ErrStepExecutionNotFound is returned when a StepExecution is not found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

func init() {
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
}

// StepExecutionDao persists step executions.
type StepExecutionDao interface {
	// SaveStepExecution persists a new step execution, assigning its id and setting its version to 0.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// SaveStepExecutions persists several new step executions.
	SaveStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error

	// UpdateStepExecution persists the state of a saved step execution with a version check.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// GetStepExecution finds a step execution of jobExecution by id. The result is bound to jobExecution
	// but not added to it.
	GetStepExecution(ctx context.Context, jobExecution *model.JobExecution, stepExecutionID int64) (*model.StepExecution, error)

	// AddStepExecutions loads the persisted step executions of jobExecution, ordered by id, and adds them to it.
	AddStepExecutions(ctx context.Context, jobExecution *model.JobExecution) error
}
