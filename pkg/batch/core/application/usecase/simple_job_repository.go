package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	exception "github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// SimpleJobRepository implements repository.JobRepository on top of the four DAOs of one backend.
// Every call is timed, traced and counted through the configured recorder and tracer.
type SimpleJobRepository struct {
	jobInstanceDao      repository.JobInstanceDao
	jobExecutionDao     repository.JobExecutionDao
	stepExecutionDao    repository.StepExecutionDao
	executionContextDao repository.ExecutionContextDao
	recorder            metrics.MetricRecorder
	tracer              metrics.Tracer
	maskedKeys          []string
}

// Verify that SimpleJobRepository implements the JobRepository interface.
var _ repository.JobRepository = (*SimpleJobRepository)(nil)

// NewSimpleJobRepository creates a new instance of SimpleJobRepository.
// A nil recorder or tracer is replaced by its no-op implementation.
func NewSimpleJobRepository(daos repository.Daos, recorder metrics.MetricRecorder, tracer metrics.Tracer) *SimpleJobRepository {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &SimpleJobRepository{
		jobInstanceDao:      daos.JobInstanceDao,
		jobExecutionDao:     daos.JobExecutionDao,
		stepExecutionDao:    daos.StepExecutionDao,
		executionContextDao: daos.ExecutionContextDao,
		recorder:            recorder,
		tracer:              tracer,
	}
}

// SetMaskedParameterKeys sets the parameter keys whose values are hidden in log output.
func (r *SimpleJobRepository) SetMaskedParameterKeys(keys []string) {
	r.maskedKeys = keys
}

// observe wraps one repository call in a span and records its duration and outcome.
func (r *SimpleJobRepository) observe(ctx context.Context, op string, attrs map[string]interface{}, fn func(ctx context.Context) error) error {
	spanCtx, end := r.tracer.StartOperationSpan(ctx, op, attrs)
	defer end()

	start := time.Now()
	err := fn(spanCtx)
	r.recorder.RecordRepositoryOperation(spanCtx, op, time.Since(start), err)
	if err != nil {
		r.tracer.RecordError(spanCtx, op, err)
		var olf *exception.OptimisticLockingFailureError
		if errors.As(err, &olf) {
			logger.Warnf("%s: %v", op, olf)
			r.recorder.RecordOptimisticLockFailure(spanCtx, olf.Entity)
		}
	}
	return err
}

// IsJobInstanceExists reports whether an instance for jobName and params was created before.
func (r *SimpleJobRepository) IsJobInstanceExists(ctx context.Context, jobName string, params model.JobParameters) (bool, error) {
	const op = "SimpleJobRepository.IsJobInstanceExists"
	exists := false
	err := r.observe(ctx, op, map[string]interface{}{"job.name": jobName}, func(ctx context.Context) error {
		_, err := r.jobInstanceDao.GetJobInstance(ctx, jobName, params)
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, repository.ErrJobInstanceNotFound):
			return nil
		default:
			return err
		}
	})
	return exists, err
}

// CreateJobExecution creates the instance for jobName and params when it does not exist yet and
// saves a new execution of it.
//
// For an existing instance every previous execution is checked: a running one yields
// ErrJobExecutionAlreadyRunning, one with status Unknown yields ErrJobRestart, and a completed or
// abandoned one yields ErrJobInstanceAlreadyComplete unless params is empty. The new execution
// inherits the execution context of the last one.
func (r *SimpleJobRepository) CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters, jobConfigurationName string) (*model.JobExecution, error) {
	const op = "SimpleJobRepository.CreateJobExecution"
	if jobName == "" {
		return nil, exception.NewIllegalArgumentError(op, "job name must not be empty", nil)
	}

	var jobExecution *model.JobExecution
	err := r.observe(ctx, op, map[string]interface{}{"job.name": jobName}, func(ctx context.Context) error {
		jobInstance, executionContext, err := r.prepareInstance(ctx, op, jobName, params)
		if err != nil {
			return err
		}

		jobExecution = model.NewJobExecution(jobInstance, params, jobConfigurationName)
		jobExecution.SetExecutionContext(executionContext)
		jobExecution.SetLastUpdated(time.Now())

		if err := r.jobExecutionDao.SaveJobExecution(ctx, jobExecution); err != nil {
			return err
		}
		if err := r.executionContextDao.SaveJobExecutionContext(ctx, jobExecution); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("Created JobExecution (ID: %d) of Job '%s' (Instance ID: %d). Parameters: %s",
		jobExecution.ID(), jobName, jobExecution.JobID(), params.MaskedString(r.maskedKeys))
	r.recorder.RecordJobStart(ctx, jobExecution)
	return jobExecution, nil
}

// prepareInstance finds or creates the instance and returns the context a new execution starts with.
func (r *SimpleJobRepository) prepareInstance(ctx context.Context, op, jobName string, params model.JobParameters) (*model.JobInstance, *model.ExecutionContext, error) {
	jobInstance, err := r.jobInstanceDao.GetJobInstance(ctx, jobName, params)
	if errors.Is(err, repository.ErrJobInstanceNotFound) {
		jobInstance, err = r.jobInstanceDao.CreateJobInstance(ctx, jobName, params)
		if err != nil {
			return nil, nil, err
		}
		logger.Debugf("Created JobInstance (ID: %d) of Job '%s'.", jobInstance.ID(), jobName)
		return jobInstance, model.NewExecutionContext(), nil
	}
	if err != nil {
		return nil, nil, err
	}

	executions, err := r.jobExecutionDao.FindJobExecutions(ctx, jobInstance)
	if err != nil {
		return nil, nil, err
	}
	if len(executions) == 0 {
		return nil, nil, exception.NewBatchErrorf(op, "JobInstance (ID: %d) of Job '%s' has no executions", jobInstance.ID(), jobName, exception.ErrJobRestart)
	}

	for _, execution := range executions {
		if execution.IsRunning() {
			return nil, nil, exception.NewBatchErrorf(op, "A job execution for this job is already running: JobExecution (ID: %d, Status: %s)",
				execution.ID(), execution.Status(), exception.ErrJobExecutionAlreadyRunning)
		}
		status := execution.Status()
		if status == model.BatchStatusUnknown {
			return nil, nil, exception.NewBatchErrorf(op, "Cannot restart JobExecution (ID: %d) with status UNKNOWN; the previous run may still be active",
				execution.ID(), exception.ErrJobRestart)
		}
		if !params.IsEmpty() && (status == model.BatchStatusCompleted || status == model.BatchStatusAbandoned) {
			return nil, nil, exception.NewBatchErrorf(op, "A job instance already exists and is complete for identifying parameters=%s. If you want to run this job again, change the parameters.",
				params.MaskedString(r.maskedKeys), exception.ErrJobInstanceAlreadyComplete)
		}
	}

	executionContext, err := r.executionContextDao.GetJobExecutionContext(ctx, executions[0])
	if err != nil {
		return nil, nil, err
	}
	logger.Infof("Restarting JobInstance (ID: %d) of Job '%s' after JobExecution (ID: %d, Status: %s).",
		jobInstance.ID(), jobName, executions[0].ID(), executions[0].Status())
	return jobInstance, executionContext, nil
}

// UpdateJobExecution stamps LastUpdated and persists the execution.
// The in-memory status is first reconciled with the stored one, so that a stop requested by another
// process is not overwritten.
func (r *SimpleJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SimpleJobRepository.UpdateJobExecution"
	if err := validateJobExecution(op, jobExecution); err != nil {
		return err
	}
	if !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution must be saved before it can be updated", nil)
	}

	spanCtx, end := r.tracer.StartJobSpan(ctx, jobExecution)
	defer end()

	err := r.observe(spanCtx, op, map[string]interface{}{"job.execution.id": jobExecution.ID()}, func(ctx context.Context) error {
		jobExecution.SetLastUpdated(time.Now())
		if err := r.jobExecutionDao.SynchronizeStatus(ctx, jobExecution); err != nil {
			return err
		}
		return r.jobExecutionDao.UpdateJobExecution(ctx, jobExecution)
	})
	if err != nil {
		return err
	}
	if jobExecution.EndTime() != nil {
		r.recorder.RecordJobEnd(ctx, jobExecution)
	}
	return nil
}

// AddStepExecution saves a new step execution together with its context.
func (r *SimpleJobRepository) AddStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SimpleJobRepository.AddStepExecution"
	if err := validateStepExecution(op, stepExecution); err != nil {
		return err
	}

	spanCtx, end := r.tracer.StartStepSpan(ctx, stepExecution)
	defer end()

	err := r.observe(spanCtx, op, map[string]interface{}{"step.name": stepExecution.StepName()}, func(ctx context.Context) error {
		stepExecution.SetLastUpdated(time.Now())
		if err := r.stepExecutionDao.SaveStepExecution(ctx, stepExecution); err != nil {
			return err
		}
		return r.executionContextDao.SaveStepExecutionContext(ctx, stepExecution)
	})
	if err != nil {
		return err
	}
	r.recorder.RecordStepStart(ctx, stepExecution)
	return nil
}

// AddStepExecutions saves several new step executions together with their contexts.
// All of them are validated before anything is written.
func (r *SimpleJobRepository) AddStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error {
	const op = "SimpleJobRepository.AddStepExecutions"
	var errs *multierror.Error
	for i, se := range stepExecutions {
		if err := validateStepExecution(op, se); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("step execution #%d: %w", i, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return exception.NewIllegalArgumentError(op, "invalid step executions", err)
	}

	err := r.observe(ctx, op, map[string]interface{}{"count": len(stepExecutions)}, func(ctx context.Context) error {
		now := time.Now()
		for _, se := range stepExecutions {
			se.SetLastUpdated(now)
		}
		if err := r.stepExecutionDao.SaveStepExecutions(ctx, stepExecutions); err != nil {
			return err
		}
		return r.executionContextDao.SaveStepExecutionContexts(ctx, stepExecutions)
	})
	if err != nil {
		return err
	}
	for _, se := range stepExecutions {
		r.recorder.RecordStepStart(ctx, se)
	}
	return nil
}

// UpdateStepExecution stamps LastUpdated and persists the step execution.
// A stop requested for the owning job execution since it was loaded marks the step terminate-only.
func (r *SimpleJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SimpleJobRepository.UpdateStepExecution"
	if err := validateStepExecution(op, stepExecution); err != nil {
		return err
	}
	if !stepExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must be saved before it can be updated", nil)
	}

	spanCtx, end := r.tracer.StartStepSpan(ctx, stepExecution)
	defer end()

	err := r.observe(spanCtx, op, map[string]interface{}{"step.execution.id": stepExecution.ID()}, func(ctx context.Context) error {
		stepExecution.SetLastUpdated(time.Now())
		if err := r.stepExecutionDao.UpdateStepExecution(ctx, stepExecution); err != nil {
			return err
		}
		return r.checkForInterruption(ctx, stepExecution)
	})
	if err != nil {
		return err
	}
	if stepExecution.EndTime() != nil {
		r.recorder.RecordStepEnd(ctx, stepExecution)
	}
	return nil
}

func (r *SimpleJobRepository) checkForInterruption(ctx context.Context, stepExecution *model.StepExecution) error {
	jobExecution := stepExecution.JobExecution()
	if err := r.jobExecutionDao.SynchronizeStatus(ctx, jobExecution); err != nil {
		return err
	}
	if jobExecution.IsStopping() && !stepExecution.IsTerminateOnly() {
		logger.Infof("Parent JobExecution (ID: %d) is stopped, so passing message on to StepExecution '%s' (ID: %d).",
			jobExecution.ID(), stepExecution.StepName(), stepExecution.ID())
		stepExecution.SetTerminateOnly()
	}
	return nil
}

// UpdateJobExecutionContext persists the context of a job execution.
func (r *SimpleJobRepository) UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SimpleJobRepository.UpdateJobExecutionContext"
	if err := validateJobExecution(op, jobExecution); err != nil {
		return err
	}
	return r.observe(ctx, op, map[string]interface{}{"job.execution.id": jobExecution.ID()}, func(ctx context.Context) error {
		return r.executionContextDao.UpdateJobExecutionContext(ctx, jobExecution)
	})
}

// UpdateStepExecutionContext persists the context of a step execution.
func (r *SimpleJobRepository) UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SimpleJobRepository.UpdateStepExecutionContext"
	if err := validateStepExecution(op, stepExecution); err != nil {
		return err
	}
	return r.observe(ctx, op, map[string]interface{}{"step.execution.id": stepExecution.ID()}, func(ctx context.Context) error {
		return r.executionContextDao.UpdateStepExecutionContext(ctx, stepExecution)
	})
}

// GetLastJobExecution returns the latest execution for jobName and params, with its context,
// or nil when the instance does not exist or never ran.
func (r *SimpleJobRepository) GetLastJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	const op = "SimpleJobRepository.GetLastJobExecution"
	var last *model.JobExecution
	err := r.observe(ctx, op, map[string]interface{}{"job.name": jobName}, func(ctx context.Context) error {
		jobInstance, err := r.jobInstanceDao.GetJobInstance(ctx, jobName, params)
		if errors.Is(err, repository.ErrJobInstanceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		last, err = r.jobExecutionDao.GetLastJobExecution(ctx, jobInstance)
		if errors.Is(err, repository.ErrJobExecutionNotFound) {
			last = nil
			return nil
		}
		if err != nil {
			return err
		}
		executionContext, err := r.executionContextDao.GetJobExecutionContext(ctx, last)
		if err != nil {
			return err
		}
		last.SetExecutionContext(executionContext)
		return r.stepExecutionDao.AddStepExecutions(ctx, last)
	})
	if err != nil {
		return nil, err
	}
	return last, nil
}

// GetLastStepExecution returns the latest execution of stepName across all executions of the instance,
// with its context, or nil when the step never ran. Latest means the most recent start time, then the
// highest id.
func (r *SimpleJobRepository) GetLastStepExecution(ctx context.Context, jobInstance *model.JobInstance, stepName string) (*model.StepExecution, error) {
	const op = "SimpleJobRepository.GetLastStepExecution"
	var latest *model.StepExecution
	err := r.observe(ctx, op, map[string]interface{}{"step.name": stepName}, func(ctx context.Context) error {
		steps, err := r.stepExecutionsOf(ctx, jobInstance, stepName)
		if err != nil || len(steps) == 0 {
			return err
		}
		latest = steps[0]
		for _, se := range steps[1:] {
			if isLater(se, latest) {
				latest = se
			}
		}
		executionContext, err := r.executionContextDao.GetStepExecutionContext(ctx, latest)
		if err != nil {
			return err
		}
		latest.SetExecutionContext(executionContext)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// GetStepExecutionCount counts the executions of stepName across all executions of the instance.
func (r *SimpleJobRepository) GetStepExecutionCount(ctx context.Context, jobInstance *model.JobInstance, stepName string) (int, error) {
	const op = "SimpleJobRepository.GetStepExecutionCount"
	count := 0
	err := r.observe(ctx, op, map[string]interface{}{"step.name": stepName}, func(ctx context.Context) error {
		steps, err := r.stepExecutionsOf(ctx, jobInstance, stepName)
		count = len(steps)
		return err
	})
	return count, err
}

func (r *SimpleJobRepository) stepExecutionsOf(ctx context.Context, jobInstance *model.JobInstance, stepName string) ([]*model.StepExecution, error) {
	if jobInstance == nil || !jobInstance.HasID() {
		return nil, exception.NewIllegalArgumentError("SimpleJobRepository.stepExecutionsOf", "JobInstance must be saved", nil)
	}
	executions, err := r.jobExecutionDao.FindJobExecutions(ctx, jobInstance)
	if err != nil {
		return nil, err
	}
	var steps []*model.StepExecution
	for _, execution := range executions {
		if err := r.stepExecutionDao.AddStepExecutions(ctx, execution); err != nil {
			return nil, err
		}
		for _, se := range execution.StepExecutions() {
			if se.StepName() == stepName {
				steps = append(steps, se)
			}
		}
	}
	return steps, nil
}

func isLater(a, b *model.StepExecution) bool {
	as, bs := a.StartTime(), b.StartTime()
	switch {
	case as != nil && bs != nil && !as.Equal(*bs):
		return as.After(*bs)
	case as != nil && bs == nil:
		return true
	case as == nil && bs != nil:
		return false
	}
	return a.ID() > b.ID()
}

func validateJobExecution(op string, jobExecution *model.JobExecution) error {
	if jobExecution == nil {
		return exception.NewIllegalArgumentError(op, "JobExecution must not be nil", nil)
	}
	if jobExecution.JobInstance() == nil || !jobExecution.JobInstance().HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution must belong to a saved JobInstance", nil)
	}
	return nil
}

func validateStepExecution(op string, stepExecution *model.StepExecution) error {
	if stepExecution == nil {
		return exception.NewIllegalArgumentError(op, "StepExecution must not be nil", nil)
	}
	if stepExecution.StepName() == "" {
		return exception.NewIllegalArgumentError(op, "StepExecution step name must not be empty", nil)
	}
	if stepExecution.JobExecution() == nil || !stepExecution.JobExecution().HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must belong to a saved JobExecution", nil)
	}
	return nil
}
