package repository

import (
	"context"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// ExecutionContextDao persists the execution contexts of job and step executions.
// Save inserts and Update overwrites; it is up to the caller to know which one applies.
type ExecutionContextDao interface {
	// GetJobExecutionContext returns the stored context, or an empty one when none was saved.
	GetJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) (*model.ExecutionContext, error)

	// GetStepExecutionContext returns the stored context, or an empty one when none was saved.
	GetStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) (*model.ExecutionContext, error)

	// SaveJobExecutionContext stores the context of a job execution for the first time.
	SaveJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error

	// SaveStepExecutionContext stores the context of a step execution for the first time.
	SaveStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error

	// SaveStepExecutionContexts stores the contexts of several step executions for the first time.
	SaveStepExecutionContexts(ctx context.Context, stepExecutions []*model.StepExecution) error

	// UpdateJobExecutionContext overwrites the stored context of a job execution.
	UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateStepExecutionContext overwrites the stored context of a step execution.
	UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error
}
