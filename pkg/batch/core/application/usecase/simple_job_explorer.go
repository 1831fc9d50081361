package usecase

import (
	"context"
	"fmt"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	exception "github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// SimpleJobExplorer is a simple implementation of the JobExplorer interface.
// Executions it returns are hydrated: instance, execution context, step executions and their contexts.
type SimpleJobExplorer struct {
	jobInstanceDao      repository.JobInstanceDao
	jobExecutionDao     repository.JobExecutionDao
	stepExecutionDao    repository.StepExecutionDao
	executionContextDao repository.ExecutionContextDao
}

// Verify that SimpleJobExplorer implements the JobExplorer interface.
var _ repository.JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new instance of SimpleJobExplorer.
func NewSimpleJobExplorer(daos repository.Daos) *SimpleJobExplorer {
	return &SimpleJobExplorer{
		jobInstanceDao:      daos.JobInstanceDao,
		jobExecutionDao:     daos.JobExecutionDao,
		stepExecutionDao:    daos.StepExecutionDao,
		executionContextDao: daos.ExecutionContextDao,
	}
}

// GetJobExecution retrieves a JobExecution by its ID.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID int64) (*model.JobExecution, error) {
	logger.Debugf("JobExplorer: GetJobExecution method called. Execution ID: %d", executionID)
	jobExecution, err := e.jobExecutionDao.GetJobExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if err := e.hydrate(ctx, jobExecution); err != nil {
		return nil, exception.NewBatchError("SimpleJobExplorer.GetJobExecution", fmt.Sprintf("Failed to load JobExecution (ID: %d)", executionID), err, false, false)
	}
	return jobExecution, nil
}

// GetStepExecution retrieves a StepExecution of the given JobExecution, with its context.
// The returned step is attached to a hydrated copy of its job execution.
func (e *SimpleJobExplorer) GetStepExecution(ctx context.Context, jobExecutionID, stepExecutionID int64) (*model.StepExecution, error) {
	logger.Debugf("JobExplorer: GetStepExecution method called. Execution ID: %d, Step Execution ID: %d", jobExecutionID, stepExecutionID)
	jobExecution, err := e.GetJobExecution(ctx, jobExecutionID)
	if err != nil {
		return nil, err
	}
	for _, se := range jobExecution.StepExecutions() {
		if se.ID() == stepExecutionID {
			return se, nil
		}
	}
	return nil, exception.NewBatchErrorf("SimpleJobExplorer.GetStepExecution", "StepExecution (ID: %d) not found in JobExecution (ID: %d)",
		stepExecutionID, jobExecutionID, repository.ErrStepExecutionNotFound)
}

// GetJobInstance retrieves a JobInstance by its ID.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID int64) (*model.JobInstance, error) {
	logger.Debugf("JobExplorer: GetJobInstance method called. Instance ID: %d", instanceID)
	return e.jobInstanceDao.GetJobInstanceByID(ctx, instanceID)
}

// GetJobExecutions retrieves all JobExecutions of the specified JobInstance, newest first.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	executions, err := e.jobExecutionDao.FindJobExecutions(ctx, jobInstance)
	if err != nil {
		return nil, err
	}
	for _, execution := range executions {
		if err := e.hydrate(ctx, execution); err != nil {
			return nil, err
		}
	}
	logger.Debugf("Retrieved %d JobExecutions associated with JobInstance (ID: %d).", len(executions), jobInstance.ID())
	return executions, nil
}

// GetJobInstances returns up to count instances of jobName, newest first, skipping the first start.
func (e *SimpleJobExplorer) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return e.jobInstanceDao.GetJobInstances(ctx, jobName, start, count)
}

// FindRunningJobExecutions returns the hydrated executions of jobName that have not ended.
func (e *SimpleJobExplorer) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	executions, err := e.jobExecutionDao.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, err
	}
	for _, execution := range executions {
		if err := e.hydrate(ctx, execution); err != nil {
			return nil, err
		}
	}
	return executions, nil
}

// GetJobNames retrieves all job names in ascending order.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	return e.jobInstanceDao.GetJobNames(ctx)
}

// GetJobInstanceCount returns the number of instances of jobName.
func (e *SimpleJobExplorer) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	return e.jobInstanceDao.GetJobInstanceCount(ctx, jobName)
}

func (e *SimpleJobExplorer) hydrate(ctx context.Context, jobExecution *model.JobExecution) error {
	if jobExecution.JobInstance() == nil {
		jobInstance, err := e.jobInstanceDao.GetJobInstanceForExecution(ctx, jobExecution)
		if err != nil {
			return err
		}
		jobExecution.SetJobInstance(jobInstance)
	}

	executionContext, err := e.executionContextDao.GetJobExecutionContext(ctx, jobExecution)
	if err != nil {
		return err
	}
	jobExecution.SetExecutionContext(executionContext)

	if len(jobExecution.StepExecutions()) == 0 {
		if err := e.stepExecutionDao.AddStepExecutions(ctx, jobExecution); err != nil {
			return err
		}
	}
	for _, se := range jobExecution.StepExecutions() {
		stepContext, err := e.executionContextDao.GetStepExecutionContext(ctx, se)
		if err != nil {
			return err
		}
		se.SetExecutionContext(stepContext)
	}
	return nil
}
