package exception

import (
	"errors"
	"fmt"
)

// Registered names of the repository error taxonomy.
const (
	IllegalArgumentException            = "IllegalArgumentException"
	OptimisticLockingFailureException   = "OptimisticLockingFailureException"
	NoSuchJobException                  = "NoSuchJobException"
	NoSuchJobExecutionException         = "NoSuchJobExecutionException"
	JobExecutionAlreadyRunningException = "JobExecutionAlreadyRunningException"
	JobInstanceAlreadyCompleteException = "JobInstanceAlreadyCompleteException"
	JobRestartException                 = "JobRestartException"
	JobExecutionNotRunningException     = "JobExecutionNotRunningException"
	JobExecutionNotStoppedException     = "JobExecutionNotStoppedException"
)

var (
	// ErrIllegalArgument marks malformed or missing required state. Never retried.
	ErrIllegalArgument = errors.New(IllegalArgumentException)
	// ErrOptimisticLockingFailure marks a version mismatch on update.
	ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)
	// ErrNoSuchJob marks an operation against an unknown job name.
	ErrNoSuchJob = errors.New(NoSuchJobException)
	// ErrNoSuchJobExecution marks an operation against an unknown execution id.
	ErrNoSuchJobExecution = errors.New(NoSuchJobExecutionException)
	// ErrJobExecutionAlreadyRunning is returned when a new execution is requested while one is running.
	ErrJobExecutionAlreadyRunning = errors.New(JobExecutionAlreadyRunningException)
	// ErrJobInstanceAlreadyComplete is returned when a completed instance is launched again.
	ErrJobInstanceAlreadyComplete = errors.New(JobInstanceAlreadyCompleteException)
	// ErrJobRestart is returned when the last execution of a job is not in a restartable state.
	ErrJobRestart = errors.New(JobRestartException)
	// ErrJobExecutionNotRunning is returned when stop is requested without a running execution.
	ErrJobExecutionNotRunning = errors.New(JobExecutionNotRunningException)
	// ErrJobExecutionNotStopped is returned when abandon is requested but the last execution did not stop.
	ErrJobExecutionNotStopped = errors.New(JobExecutionNotStoppedException)
)

// NewIllegalArgumentError creates a non-retryable BatchError wrapping ErrIllegalArgument.
// cause is optional and is kept in the chain so errors.Is works for both.
func NewIllegalArgumentError(module, message string, cause error) *BatchError {
	wrapped := ErrIllegalArgument
	if cause != nil {
		wrapped = errors.Join(ErrIllegalArgument, cause)
	}
	return NewBatchError(module, message, wrapped, false, false)
}

// IsIllegalArgument reports whether err is a validation or serialization failure.
func IsIllegalArgument(err error) bool {
	return errors.Is(err, ErrIllegalArgument)
}

// OptimisticLockingFailureError reports an update issued with a stale version.
type OptimisticLockingFailureError struct {
	Entity           string
	ID               int64
	AttemptedVersion int
	CurrentVersion   int
}

func (e *OptimisticLockingFailureError) Error() string {
	return fmt.Sprintf("Attempt to update %s id=%d with wrong version (%d), where current version is %d",
		e.Entity, e.ID, e.AttemptedVersion, e.CurrentVersion)
}

// Is matches ErrOptimisticLockingFailure.
func (e *OptimisticLockingFailureError) Is(target error) bool {
	return target == ErrOptimisticLockingFailure
}

// NewOptimisticLockingFailureException creates a retryable BatchError describing a version conflict.
// module: The module where the error occurred.
// entity: Human readable entity kind, e.g. "job execution".
func NewOptimisticLockingFailureException(module, entity string, id int64, attempted, current int) *BatchError {
	olf := &OptimisticLockingFailureError{
		Entity:           entity,
		ID:               id,
		AttemptedVersion: attempted,
		CurrentVersion:   current,
	}
	return NewBatchError(module, olf.Error(), olf, false, true)
}

// IsOptimisticLockingFailure determines if an error indicates an optimistic locking failure.
func IsOptimisticLockingFailure(err error) bool {
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// NoSuchJobError reports an unknown job name.
type NoSuchJobError struct {
	JobName string
}

func (e *NoSuchJobError) Error() string {
	return fmt.Sprintf("No job instances were found for job name %s", e.JobName)
}

// Is matches ErrNoSuchJob.
func (e *NoSuchJobError) Is(target error) bool {
	return target == ErrNoSuchJob
}

// NewNoSuchJobException creates a BatchError for an unknown job name.
func NewNoSuchJobException(module, jobName string) *BatchError {
	nsj := &NoSuchJobError{JobName: jobName}
	return NewBatchError(module, nsj.Error(), nsj, false, false)
}

// IsNoSuchJob reports whether err denotes an unknown job name.
func IsNoSuchJob(err error) bool {
	return errors.Is(err, ErrNoSuchJob)
}
