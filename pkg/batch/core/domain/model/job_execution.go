package model

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// JobExecution is a single attempt to run a JobInstance.
// It owns its StepExecutions; a step execution only keeps a back-reference for lookups.
// All accessors are safe for concurrent use.
type JobExecution struct {
	Entity

	mu                   sync.RWMutex
	jobInstance          *JobInstance
	jobParameters        JobParameters
	jobConfigurationName string
	stepExecutions       []*StepExecution
	status               BatchStatus
	exitStatus           ExitStatus
	createTime           *time.Time
	startTime            *time.Time
	endTime              *time.Time
	lastUpdated          *time.Time
	executionContext     *ExecutionContext
	failureExceptions    []error

	// persistMu serializes persistence of this instance; it never guards field access.
	persistMu sync.Mutex
}

// JobExecutionState is a consistent snapshot of the persisted fields of a JobExecution.
type JobExecutionState struct {
	Status      BatchStatus
	ExitStatus  ExitStatus
	CreateTime  *time.Time
	StartTime   *time.Time
	EndTime     *time.Time
	LastUpdated *time.Time
}

// NewJobExecution creates an execution for jobInstance with status Starting and exit status Unknown.
// jobInstance may be nil when the execution is reconstituted without its instance.
func NewJobExecution(jobInstance *JobInstance, jobParameters JobParameters, jobConfigurationName string) *JobExecution {
	now := time.Now()
	return &JobExecution{
		jobInstance:          jobInstance,
		jobParameters:        jobParameters,
		jobConfigurationName: jobConfigurationName,
		status:               BatchStatusStarting,
		exitStatus:           ExitStatusUnknown,
		createTime:           &now,
		executionContext:     NewExecutionContext(),
	}
}

// NewJobExecutionWithID creates an execution that already carries an id.
func NewJobExecutionWithID(jobInstance *JobInstance, id int64, jobParameters JobParameters, jobConfigurationName string) *JobExecution {
	je := NewJobExecution(jobInstance, jobParameters, jobConfigurationName)
	je.SetID(id)
	return je
}

// LockForUpdate serializes persistence of this execution within the process.
func (je *JobExecution) LockForUpdate() { je.persistMu.Lock() }

// UnlockForUpdate releases the lock taken by LockForUpdate.
func (je *JobExecution) UnlockForUpdate() { je.persistMu.Unlock() }

// JobInstance returns the owning instance, possibly nil.
func (je *JobExecution) JobInstance() *JobInstance {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.jobInstance
}

// SetJobInstance attaches the owning instance.
func (je *JobExecution) SetJobInstance(jobInstance *JobInstance) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.jobInstance = jobInstance
}

// JobID returns the id of the owning instance, 0 when unknown.
func (je *JobExecution) JobID() int64 {
	if ji := je.JobInstance(); ji != nil {
		return ji.ID()
	}
	return 0
}

// JobParameters returns the parameters of this execution.
func (je *JobExecution) JobParameters() JobParameters {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.jobParameters
}

// SetJobParameters replaces the parameters; used when rebuilding from storage.
func (je *JobExecution) SetJobParameters(params JobParameters) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.jobParameters = params
}

// JobConfigurationName returns the name of the configuration that defined the job.
func (je *JobExecution) JobConfigurationName() string {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.jobConfigurationName
}

// Status returns the current batch status.
func (je *JobExecution) Status() BatchStatus {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.status
}

// SetStatus overwrites the status.
func (je *JobExecution) SetStatus(status BatchStatus) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.status = status
}

// UpgradeStatus combines the current status with status using BatchStatus.UpgradeTo.
func (je *JobExecution) UpgradeStatus(status BatchStatus) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.status = je.status.UpgradeTo(status)
}

// ExitStatus returns the exit status.
func (je *JobExecution) ExitStatus() ExitStatus {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.exitStatus
}

// SetExitStatus overwrites the exit status.
func (je *JobExecution) SetExitStatus(exitStatus ExitStatus) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.exitStatus = exitStatus
}

// CreateTime returns when the execution was created.
func (je *JobExecution) CreateTime() *time.Time {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return copyTime(je.createTime)
}

// SetCreateTime sets the creation time.
func (je *JobExecution) SetCreateTime(t time.Time) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.createTime = &t
}

// StartTime returns when the execution started, nil if it has not.
func (je *JobExecution) StartTime() *time.Time {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return copyTime(je.startTime)
}

// SetStartTime sets the start time.
func (je *JobExecution) SetStartTime(t time.Time) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.startTime = &t
}

// EndTime returns when the execution ended, nil while running.
func (je *JobExecution) EndTime() *time.Time {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return copyTime(je.endTime)
}

// SetEndTime sets the end time.
func (je *JobExecution) SetEndTime(t time.Time) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.endTime = &t
}

// LastUpdated returns when the execution was last persisted.
func (je *JobExecution) LastUpdated() *time.Time {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return copyTime(je.lastUpdated)
}

// SetLastUpdated sets the last update time.
func (je *JobExecution) SetLastUpdated(t time.Time) {
	je.mu.Lock()
	defer je.mu.Unlock()
	je.lastUpdated = &t
}

// ExecutionContext returns the context of this execution.
func (je *JobExecution) ExecutionContext() *ExecutionContext {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.executionContext
}

// SetExecutionContext replaces the context. A nil context is replaced by an empty one.
func (je *JobExecution) SetExecutionContext(ec *ExecutionContext) {
	if ec == nil {
		ec = NewExecutionContext()
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	je.executionContext = ec
}

// IsRunning reports whether the execution has no end time yet.
func (je *JobExecution) IsRunning() bool {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return je.endTime == nil
}

// IsStopping reports whether a stop was requested.
func (je *JobExecution) IsStopping() bool {
	return je.Status() == BatchStatusStopping
}

// Stop flags every owned step execution as terminate-only and then sets the status to Stopping.
func (je *JobExecution) Stop() {
	for _, se := range je.StepExecutions() {
		se.SetTerminateOnly()
	}
	je.SetStatus(BatchStatusStopping)
}

// StepExecutions returns a snapshot of the owned step executions in insertion order.
func (je *JobExecution) StepExecutions() []*StepExecution {
	je.mu.RLock()
	defer je.mu.RUnlock()
	out := make([]*StepExecution, len(je.stepExecutions))
	copy(out, je.stepExecutions)
	return out
}

// AddStepExecution registers a step execution unless an equal one is already owned.
// It reports whether the step execution was added.
func (je *JobExecution) AddStepExecution(se *StepExecution) bool {
	if se == nil {
		return false
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	for _, existing := range je.stepExecutions {
		if existing.Equals(se) {
			return false
		}
	}
	je.stepExecutions = append(je.stepExecutions, se)
	return true
}

// AddStepExecutions registers several step executions, skipping duplicates.
func (je *JobExecution) AddStepExecutions(stepExecutions []*StepExecution) {
	for _, se := range stepExecutions {
		je.AddStepExecution(se)
	}
}

// CreateStepExecution creates a step execution owned by this job execution.
func (je *JobExecution) CreateStepExecution(stepName string) (*StepExecution, error) {
	se, err := NewStepExecution(stepName, je)
	if err != nil {
		return nil, err
	}
	je.AddStepExecution(se)
	return se, nil
}

// AddFailureException records a failure of the job itself.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	je.mu.Lock()
	defer je.mu.Unlock()
	je.failureExceptions = append(je.failureExceptions, err)
}

// FailureExceptions returns the failures recorded on the job itself.
func (je *JobExecution) FailureExceptions() []error {
	je.mu.RLock()
	defer je.mu.RUnlock()
	out := make([]error, len(je.failureExceptions))
	copy(out, je.failureExceptions)
	return out
}

// AllFailureExceptions returns the job failures followed by the failures of every step, without duplicates.
func (je *JobExecution) AllFailureExceptions() []error {
	all := je.FailureExceptions()
	for _, se := range je.StepExecutions() {
		for _, err := range se.FailureExceptions() {
			if !containsError(all, err) {
				all = append(all, err)
			}
		}
	}
	return all
}

// FailureError folds AllFailureExceptions into one error, nil when there are none.
func (je *JobExecution) FailureError() error {
	var result *multierror.Error
	for _, err := range je.AllFailureExceptions() {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Snapshot returns the persisted fields read under a single lock acquisition.
func (je *JobExecution) Snapshot() JobExecutionState {
	je.mu.RLock()
	defer je.mu.RUnlock()
	return JobExecutionState{
		Status:      je.status,
		ExitStatus:  je.exitStatus,
		CreateTime:  copyTime(je.createTime),
		StartTime:   copyTime(je.startTime),
		EndTime:     copyTime(je.endTime),
		LastUpdated: copyTime(je.lastUpdated),
	}
}

// Equals reports whether both refer to the same persisted execution.
func (je *JobExecution) Equals(other *JobExecution) bool {
	if je == nil || other == nil {
		return je == other
	}
	return je.sameIdentity(&other.Entity)
}

// CloneWithoutSteps returns an independent copy of the execution state, without step executions.
// The job instance and the execution context are copied as well.
func (je *JobExecution) CloneWithoutSteps() *JobExecution {
	if je == nil {
		return nil
	}
	je.mu.RLock()
	cp := &JobExecution{
		jobInstance:          je.jobInstance.Clone(),
		jobParameters:        je.jobParameters,
		jobConfigurationName: je.jobConfigurationName,
		status:               je.status,
		exitStatus:           je.exitStatus,
		createTime:           copyTime(je.createTime),
		startTime:            copyTime(je.startTime),
		endTime:              copyTime(je.endTime),
		lastUpdated:          copyTime(je.lastUpdated),
		executionContext:     je.executionContext.Copy(),
		failureExceptions:    append([]error(nil), je.failureExceptions...),
	}
	je.mu.RUnlock()
	cp.copyIdentityFrom(&je.Entity)
	return cp
}

// Clone returns an independent copy including cloned step executions that point back to the copy.
func (je *JobExecution) Clone() *JobExecution {
	if je == nil {
		return nil
	}
	cp := je.CloneWithoutSteps()
	for _, se := range je.StepExecutions() {
		cp.stepExecutions = append(cp.stepExecutions, se.CloneFor(cp))
	}
	return cp
}

func (je *JobExecution) String() string {
	je.mu.RLock()
	defer je.mu.RUnlock()
	jobName := ""
	if je.jobInstance != nil {
		jobName = je.jobInstance.JobName()
	}
	return fmt.Sprintf("%s, startTime=%s, endTime=%s, lastUpdated=%s, status=%s, exitStatus=%s, job=[%s], jobParameters=%s",
		je.describe("JobExecution"), formatTime(je.startTime), formatTime(je.endTime), formatTime(je.lastUpdated),
		je.status, je.exitStatus, jobName, je.jobParameters)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "nil"
	}
	return t.Format(time.RFC3339Nano)
}

// containsError reports whether target is already in errs. Errors whose dynamic type is not
// comparable are never treated as duplicates.
func containsError(errs []error, target error) bool {
	if !reflect.TypeOf(target).Comparable() {
		return false
	}
	for _, err := range errs {
		if reflect.TypeOf(err) == reflect.TypeOf(target) && err == target {
			return true
		}
	}
	return false
}
