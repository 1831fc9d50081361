package usecase

import (
	"context"
	"time"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	"github.com/tigerroll/batchstate/pkg/batch/core/support/incrementer"
	exception "github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// JobOperator drives the lifecycle of jobs by name: start, stop, abandon and restart.
// It only changes persisted state; running the steps is left to the caller.
type JobOperator interface {
	// Start creates a new execution of jobName with params.
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// StartNextInstance creates an execution of a new instance, deriving its parameters from the
	// last instance of jobName with inc.
	StartNextInstance(ctx context.Context, jobName string, inc incrementer.JobParametersIncrementer) (*model.JobExecution, error)

	// Stop requests every running execution of jobName to stop.
	Stop(ctx context.Context, jobName string) ([]*model.JobExecution, error)

	// Abandon marks the last execution of jobName as abandoned. It must have stopped or failed.
	Abandon(ctx context.Context, jobName string) (*model.JobExecution, error)

	// Restart creates a new execution of the last instance of jobName. The last execution must have
	// ended worse than Stopping.
	Restart(ctx context.Context, jobName string) (*model.JobExecution, error)
}

// DefaultJobOperator is the default implementation of the JobOperator interface.
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	jobExplorer   repository.JobExplorer
	recorder      metrics.MetricRecorder
}

// Verify that DefaultJobOperator implements the JobOperator interface.
var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new instance of DefaultJobOperator.
func NewDefaultJobOperator(jobRepository repository.JobRepository, jobExplorer repository.JobExplorer, recorder metrics.MetricRecorder) *DefaultJobOperator {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &DefaultJobOperator{
		jobRepository: jobRepository,
		jobExplorer:   jobExplorer,
		recorder:      recorder,
	}
}

func (o *DefaultJobOperator) timed(ctx context.Context, command, jobName string) func() {
	start := time.Now()
	return func() {
		o.recorder.RecordDuration(ctx, "job_operator", time.Since(start), map[string]string{"command": command, "job_name": jobName})
	}
}

// Start creates a new execution of jobName with params.
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	defer o.timed(ctx, "start", jobName)()
	logger.Infof("JobOperator: Start method called. Job Name: %s", jobName)
	return o.jobRepository.CreateJobExecution(ctx, jobName, params, "")
}

// StartNextInstance creates an execution of a new instance of jobName. The parameters of the last
// instance's most recent execution, or empty parameters when the job never ran, are passed to inc.
func (o *DefaultJobOperator) StartNextInstance(ctx context.Context, jobName string, inc incrementer.JobParametersIncrementer) (*model.JobExecution, error) {
	const op = "DefaultJobOperator.StartNextInstance"
	defer o.timed(ctx, "start_next_instance", jobName)()
	if inc == nil {
		return nil, exception.NewIllegalArgumentError(op, "a JobParametersIncrementer is required", nil)
	}

	params := model.NewJobParameters()
	last, err := o.lastExecution(ctx, op, jobName)
	switch {
	case err == nil:
		params = last.JobParameters()
	case exception.IsNoSuchJob(err):
		logger.Infof("JobOperator: Job '%s' has no instances yet, starting from empty parameters.", jobName)
	default:
		return nil, err
	}

	next := inc.GetNext(params)
	logger.Infof("JobOperator: Generated new JobParameters for Job '%s' using %v.", jobName, inc)
	return o.jobRepository.CreateJobExecution(ctx, jobName, next, "")
}

// Stop calls JobExecution.Stop on every running execution of jobName and persists each of them
// together with its unfinished step executions. It returns the stopped executions.
func (o *DefaultJobOperator) Stop(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	const op = "DefaultJobOperator.Stop"
	defer o.timed(ctx, "stop", jobName)()
	logger.Infof("JobOperator: Stop method called. Job Name: %s", jobName)

	running, err := o.jobExplorer.FindRunningJobExecutions(ctx, jobName)
	if err != nil {
		return nil, err
	}
	if len(running) == 0 {
		return nil, exception.NewBatchErrorf(op, "No running execution found for job '%s'", jobName, exception.ErrJobExecutionNotRunning)
	}

	for _, jobExecution := range running {
		jobExecution.Stop()
		if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
			return nil, err
		}
		for _, se := range jobExecution.StepExecutions() {
			if se.EndTime() != nil {
				continue
			}
			if err := o.jobRepository.UpdateStepExecution(ctx, se); err != nil {
				return nil, err
			}
		}
		logger.Infof("Updated JobExecution (ID: %d) status to STOPPING.", jobExecution.ID())
	}
	return running, nil
}

// Abandon marks the last execution of jobName as Abandoned and ends it. Executions that are still
// running, or were already abandoned, yield ErrJobExecutionNotStopped.
func (o *DefaultJobOperator) Abandon(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "DefaultJobOperator.Abandon"
	defer o.timed(ctx, "abandon", jobName)()
	logger.Infof("JobOperator: Abandon method called. Job Name: %s", jobName)

	jobExecution, err := o.lastExecution(ctx, op, jobName)
	if err != nil {
		return nil, err
	}

	status := jobExecution.Status()
	if !status.IsGreaterThan(model.BatchStatusStopping) || status == model.BatchStatusAbandoned {
		logger.Warnf("JobExecution (ID: %d) cannot be abandoned (current status: %s).", jobExecution.ID(), status)
		return nil, exception.NewBatchErrorf(op, "JobExecution (ID: %d) of job '%s' is not stopped (current status: %s)",
			jobExecution.ID(), jobName, status, exception.ErrJobExecutionNotStopped)
	}

	jobExecution.SetStatus(model.BatchStatusAbandoned)
	if jobExecution.EndTime() == nil {
		jobExecution.SetEndTime(time.Now())
	}
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return nil, err
	}

	logger.Infof("Successfully abandoned JobExecution (ID: %d).", jobExecution.ID())
	return jobExecution, nil
}

// Restart creates a new execution of the last instance of jobName with the parameters of its last
// execution. Only executions that ended worse than Stopping can be restarted.
func (o *DefaultJobOperator) Restart(ctx context.Context, jobName string) (*model.JobExecution, error) {
	const op = "DefaultJobOperator.Restart"
	defer o.timed(ctx, "restart", jobName)()
	logger.Infof("JobOperator: Restart method called. Job Name: %s", jobName)

	last, err := o.lastExecution(ctx, op, jobName)
	if err != nil {
		return nil, err
	}
	if !last.Status().IsGreaterThan(model.BatchStatusStopping) {
		return nil, exception.NewBatchErrorf(op, "JobExecution (ID: %d) of job '%s' is not in a restartable state (current status: %s)",
			last.ID(), jobName, last.Status(), exception.ErrJobRestart)
	}

	next, err := o.jobRepository.CreateJobExecution(ctx, jobName, last.JobParameters(), last.JobConfigurationName())
	if err != nil {
		return nil, err
	}
	logger.Infof("Restart of Job '%s' (Execution ID: %d) created. New execution ID: %d", jobName, last.ID(), next.ID())
	return next, nil
}

// lastExecution returns the most recent execution of the most recent instance of jobName.
func (o *DefaultJobOperator) lastExecution(ctx context.Context, op, jobName string) (*model.JobExecution, error) {
	instances, err := o.jobExplorer.GetJobInstances(ctx, jobName, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, exception.NewNoSuchJobException(op, jobName)
	}
	executions, err := o.jobExplorer.GetJobExecutions(ctx, instances[0])
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, exception.NewBatchErrorf(op, "JobInstance (ID: %d) of job '%s' has no executions", instances[0].ID(), jobName, exception.ErrNoSuchJobExecution)
	}
	return executions[0], nil
}
