// Package repository defines the persistence ports of the batch execution-state model:
// one DAO per entity plus the JobRepository and JobExplorer facades built on top of them.
// Every DAO has an in-memory and a relational implementation with the same observable behavior.
package repository

import (
	"context"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// Daos bundles the four DAOs of one backend.
type Daos struct {
	JobInstanceDao      JobInstanceDao
	JobExecutionDao     JobExecutionDao
	StepExecutionDao    StepExecutionDao
	ExecutionContextDao ExecutionContextDao
}

// JobRepository is the write side used while jobs run.
type JobRepository interface {
	// IsJobInstanceExists reports whether an instance for jobName and params was created before.
	IsJobInstanceExists(ctx context.Context, jobName string, params model.JobParameters) (bool, error)

	// CreateJobExecution creates the instance if needed and a new execution for it.
	// It refuses to start while another execution of the instance is running, and refuses
	// to run a completed instance again.
	CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters, jobConfigurationName string) (*model.JobExecution, error)

	// UpdateJobExecution stamps LastUpdated and persists the execution.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// AddStepExecution saves a new step execution together with its context.
	AddStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// AddStepExecutions saves several new step executions together with their contexts.
	AddStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error

	// UpdateStepExecution stamps LastUpdated and persists the step execution.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateJobExecutionContext persists the context of a job execution.
	UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error

	// UpdateStepExecutionContext persists the context of a step execution.
	UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error

	// GetLastJobExecution returns the latest execution for jobName and params.
	GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// GetLastStepExecution returns the latest execution of stepName across all executions of the instance.
	GetLastStepExecution(ctx context.Context, jobInstance *model.JobInstance, stepName string) (*model.StepExecution, error)

	// GetStepExecutionCount counts the executions of stepName across all executions of the instance.
	GetStepExecutionCount(ctx context.Context, jobInstance *model.JobInstance, stepName string) (int, error)
}

// JobExplorer is the read side: it returns executions hydrated with their instance, steps and contexts.
type JobExplorer interface {
	GetJobExecution(ctx context.Context, executionID int64) (*model.JobExecution, error)
	GetStepExecution(ctx context.Context, jobExecutionID, stepExecutionID int64) (*model.StepExecution, error)
	GetJobInstance(ctx context.Context, instanceID int64) (*model.JobInstance, error)
	GetJobExecutions(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error)
	GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
	GetJobNames(ctx context.Context) ([]string, error)
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)
}
