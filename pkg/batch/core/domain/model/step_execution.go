package model

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrEmptyStepName is returned when a step execution is created without a name.
var ErrEmptyStepName = errors.New("a step name is required")

// StepExecution is a single attempt to run a step within a JobExecution.
// Counters, status and timestamps are guarded by one lock per instance so that
// Apply and IncrementRollbackCount appear atomic to concurrent readers.
type StepExecution struct {
	Entity

	stepName     string
	jobExecution *JobExecution

	mu                sync.RWMutex
	status            BatchStatus
	exitStatus        ExitStatus
	readCount         int
	writeCount        int
	commitCount       int
	rollbackCount     int
	readSkipCount     int
	processSkipCount  int
	writeSkipCount    int
	filterCount       int
	startTime         *time.Time
	endTime           *time.Time
	lastUpdated       *time.Time
	executionContext  *ExecutionContext
	terminateOnly     bool
	failureExceptions []error

	persistMu sync.Mutex
}

// StepExecutionState is a consistent snapshot of the mutable state of a StepExecution.
type StepExecutionState struct {
	Status           BatchStatus
	ExitStatus       ExitStatus
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	ReadSkipCount    int
	ProcessSkipCount int
	WriteSkipCount   int
	FilterCount      int
	StartTime        *time.Time
	EndTime          *time.Time
	LastUpdated      *time.Time
	TerminateOnly    bool
}

// NewStepExecution creates a step execution with status Starting, exit status Executing and
// start time now. It is not added to jobExecution; use JobExecution.CreateStepExecution for that.
func NewStepExecution(stepName string, jobExecution *JobExecution) (*StepExecution, error) {
	if stepName == "" {
		return nil, ErrEmptyStepName
	}
	now := time.Now()
	return &StepExecution{
		stepName:         stepName,
		jobExecution:     jobExecution,
		status:           BatchStatusStarting,
		exitStatus:       ExitStatusExecuting,
		startTime:        &now,
		executionContext: NewExecutionContext(),
	}, nil
}

// NewStepExecutionWithID creates a step execution that already carries an id.
func NewStepExecutionWithID(stepName string, jobExecution *JobExecution, id int64) (*StepExecution, error) {
	se, err := NewStepExecution(stepName, jobExecution)
	if err != nil {
		return nil, err
	}
	se.SetID(id)
	return se, nil
}

// LockForUpdate serializes persistence of this step execution within the process.
func (se *StepExecution) LockForUpdate() { se.persistMu.Lock() }

// UnlockForUpdate releases the lock taken by LockForUpdate.
func (se *StepExecution) UnlockForUpdate() { se.persistMu.Unlock() }

// StepName returns the step name.
func (se *StepExecution) StepName() string {
	return se.stepName
}

// JobExecution returns the owning job execution, possibly nil.
func (se *StepExecution) JobExecution() *JobExecution {
	return se.jobExecution
}

// JobExecutionID returns the id of the owning job execution, 0 when unknown.
func (se *StepExecution) JobExecutionID() int64 {
	if se.jobExecution == nil {
		return 0
	}
	return se.jobExecution.ID()
}

// JobParameters returns the parameters of the owning job execution.
func (se *StepExecution) JobParameters() JobParameters {
	if se.jobExecution == nil {
		return JobParameters{}
	}
	return se.jobExecution.JobParameters()
}

// Status returns the batch status.
func (se *StepExecution) Status() BatchStatus {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return se.status
}

// SetStatus overwrites the batch status.
func (se *StepExecution) SetStatus(status BatchStatus) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.status = status
}

// UpgradeStatus combines the current status with status using BatchStatus.UpgradeTo.
func (se *StepExecution) UpgradeStatus(status BatchStatus) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.status = se.status.UpgradeTo(status)
}

// ExitStatus returns the exit status.
func (se *StepExecution) ExitStatus() ExitStatus {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return se.exitStatus
}

// SetExitStatus overwrites the exit status.
func (se *StepExecution) SetExitStatus(exitStatus ExitStatus) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.exitStatus = exitStatus
}

func (se *StepExecution) readInt(field *int) int {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return *field
}

func (se *StepExecution) writeInt(field *int, v int) {
	se.mu.Lock()
	defer se.mu.Unlock()
	*field = v
}

// ReadCount returns the number of items read.
func (se *StepExecution) ReadCount() int { return se.readInt(&se.readCount) }

// SetReadCount sets the number of items read.
func (se *StepExecution) SetReadCount(v int) { se.writeInt(&se.readCount, v) }

// WriteCount returns the number of items written.
func (se *StepExecution) WriteCount() int { return se.readInt(&se.writeCount) }

// SetWriteCount sets the number of items written.
func (se *StepExecution) SetWriteCount(v int) { se.writeInt(&se.writeCount, v) }

// CommitCount returns the number of committed transactions.
func (se *StepExecution) CommitCount() int { return se.readInt(&se.commitCount) }

// SetCommitCount sets the number of committed transactions.
func (se *StepExecution) SetCommitCount(v int) { se.writeInt(&se.commitCount, v) }

// RollbackCount returns the number of rolled back transactions.
func (se *StepExecution) RollbackCount() int { return se.readInt(&se.rollbackCount) }

// SetRollbackCount sets the number of rolled back transactions.
func (se *StepExecution) SetRollbackCount(v int) { se.writeInt(&se.rollbackCount, v) }

// ReadSkipCount returns the number of items skipped on read.
func (se *StepExecution) ReadSkipCount() int { return se.readInt(&se.readSkipCount) }

// SetReadSkipCount sets the number of items skipped on read.
func (se *StepExecution) SetReadSkipCount(v int) { se.writeInt(&se.readSkipCount, v) }

// ProcessSkipCount returns the number of items skipped during processing.
func (se *StepExecution) ProcessSkipCount() int { return se.readInt(&se.processSkipCount) }

// SetProcessSkipCount sets the number of items skipped during processing.
func (se *StepExecution) SetProcessSkipCount(v int) { se.writeInt(&se.processSkipCount, v) }

// WriteSkipCount returns the number of items skipped on write.
func (se *StepExecution) WriteSkipCount() int { return se.readInt(&se.writeSkipCount) }

// SetWriteSkipCount sets the number of items skipped on write.
func (se *StepExecution) SetWriteSkipCount(v int) { se.writeInt(&se.writeSkipCount, v) }

// FilterCount returns the number of items filtered out by processing.
func (se *StepExecution) FilterCount() int { return se.readInt(&se.filterCount) }

// SetFilterCount sets the number of filtered items.
func (se *StepExecution) SetFilterCount(v int) { se.writeInt(&se.filterCount, v) }

// SkipCount returns read, process and write skips combined.
func (se *StepExecution) SkipCount() int {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return se.readSkipCount + se.processSkipCount + se.writeSkipCount
}

// IncrementCommitCount adds one commit.
func (se *StepExecution) IncrementCommitCount() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.commitCount++
}

// IncrementRollbackCount adds one rollback.
func (se *StepExecution) IncrementRollbackCount() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.rollbackCount++
}

// Apply folds the counters and exit status of a chunk contribution into this execution.
func (se *StepExecution) Apply(contribution *StepContribution) {
	if contribution == nil {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.readSkipCount += contribution.ReadSkipCount()
	se.writeSkipCount += contribution.WriteSkipCount()
	se.processSkipCount += contribution.ProcessSkipCount()
	se.filterCount += contribution.FilterCount()
	se.readCount += contribution.ReadCount()
	se.writeCount += contribution.WriteCount()
	se.exitStatus = se.exitStatus.And(contribution.ExitStatus())
}

// CreateStepContribution returns a fresh contribution whose parent skip count is the current skip count.
func (se *StepExecution) CreateStepContribution() *StepContribution {
	return NewStepContribution(se.SkipCount())
}

// StartTime returns when the step started.
func (se *StepExecution) StartTime() *time.Time {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return copyTime(se.startTime)
}

// SetStartTime sets the start time.
func (se *StepExecution) SetStartTime(t time.Time) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.startTime = &t
}

// ClearStartTime removes the start time; used when rebuilding from storage.
func (se *StepExecution) ClearStartTime() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.startTime = nil
}

// EndTime returns when the step ended, nil while running.
func (se *StepExecution) EndTime() *time.Time {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return copyTime(se.endTime)
}

// SetEndTime sets the end time.
func (se *StepExecution) SetEndTime(t time.Time) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.endTime = &t
}

// LastUpdated returns when the step was last persisted.
func (se *StepExecution) LastUpdated() *time.Time {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return copyTime(se.lastUpdated)
}

// SetLastUpdated sets the last update time.
func (se *StepExecution) SetLastUpdated(t time.Time) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.lastUpdated = &t
}

// ExecutionContext returns the context of this step execution.
func (se *StepExecution) ExecutionContext() *ExecutionContext {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return se.executionContext
}

// SetExecutionContext replaces the context. A nil context is replaced by an empty one.
func (se *StepExecution) SetExecutionContext(ec *ExecutionContext) {
	if ec == nil {
		ec = NewExecutionContext()
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.executionContext = ec
}

// SetTerminateOnly signals the step to stop at its next safe point. The flag is never reset.
func (se *StepExecution) SetTerminateOnly() {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.terminateOnly = true
}

// IsTerminateOnly reports whether a stop was signalled.
func (se *StepExecution) IsTerminateOnly() bool {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return se.terminateOnly
}

// AddFailureException records a failure of this step.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	se.mu.Lock()
	defer se.mu.Unlock()
	se.failureExceptions = append(se.failureExceptions, err)
}

// FailureExceptions returns the recorded failures.
func (se *StepExecution) FailureExceptions() []error {
	se.mu.RLock()
	defer se.mu.RUnlock()
	out := make([]error, len(se.failureExceptions))
	copy(out, se.failureExceptions)
	return out
}

// Snapshot returns the mutable state read under a single lock acquisition.
func (se *StepExecution) Snapshot() StepExecutionState {
	se.mu.RLock()
	defer se.mu.RUnlock()
	return StepExecutionState{
		Status:           se.status,
		ExitStatus:       se.exitStatus,
		ReadCount:        se.readCount,
		WriteCount:       se.writeCount,
		CommitCount:      se.commitCount,
		RollbackCount:    se.rollbackCount,
		ReadSkipCount:    se.readSkipCount,
		ProcessSkipCount: se.processSkipCount,
		WriteSkipCount:   se.writeSkipCount,
		FilterCount:      se.filterCount,
		StartTime:        copyTime(se.startTime),
		EndTime:          copyTime(se.endTime),
		LastUpdated:      copyTime(se.lastUpdated),
		TerminateOnly:    se.terminateOnly,
	}
}

// Restore overwrites the mutable state from a snapshot. The terminate-only flag is only ever set, never cleared.
func (se *StepExecution) Restore(state StepExecutionState) {
	se.mu.Lock()
	defer se.mu.Unlock()
	se.status = state.Status
	se.exitStatus = state.ExitStatus
	se.readCount = state.ReadCount
	se.writeCount = state.WriteCount
	se.commitCount = state.CommitCount
	se.rollbackCount = state.RollbackCount
	se.readSkipCount = state.ReadSkipCount
	se.processSkipCount = state.ProcessSkipCount
	se.writeSkipCount = state.WriteSkipCount
	se.filterCount = state.FilterCount
	se.startTime = copyTime(state.StartTime)
	se.endTime = copyTime(state.EndTime)
	se.lastUpdated = copyTime(state.LastUpdated)
	se.terminateOnly = se.terminateOnly || state.TerminateOnly
}

// Equals requires the same step name, the same owning execution id and the same id.
// Before an id is assigned only the very same instance is equal.
func (se *StepExecution) Equals(other *StepExecution) bool {
	if se == nil || other == nil {
		return se == other
	}
	if se == other {
		return true
	}
	if !se.HasID() || !other.HasID() {
		return se.sameIdentity(&other.Entity)
	}
	return se.stepName == other.stepName &&
		se.JobExecutionID() == other.JobExecutionID() &&
		se.ID() == other.ID()
}

// CloneFor returns an independent copy bound to jobExecution. The copy is not added to it.
func (se *StepExecution) CloneFor(jobExecution *JobExecution) *StepExecution {
	if se == nil {
		return nil
	}
	cp := &StepExecution{
		stepName:     se.stepName,
		jobExecution: jobExecution,
	}
	cp.Restore(se.Snapshot())
	cp.executionContext = se.ExecutionContext().Copy()
	cp.failureExceptions = se.FailureExceptions()
	cp.copyIdentityFrom(&se.Entity)
	return cp
}

// Clone returns an independent copy whose owning job execution is a copy without steps.
func (se *StepExecution) Clone() *StepExecution {
	if se == nil {
		return nil
	}
	return se.CloneFor(se.jobExecution.CloneWithoutSteps())
}

// Summary renders the counters for logs.
func (se *StepExecution) Summary() string {
	s := se.Snapshot()
	return fmt.Sprintf("%s, name=%s, status=%s, exitStatus=%s, readCount=%d, filterCount=%d, writeCount=%d, readSkipCount=%d, writeSkipCount=%d, processSkipCount=%d, commitCount=%d, rollbackCount=%d",
		se.describe("StepExecution"), se.stepName, s.Status, s.ExitStatus.ExitCode(), s.ReadCount, s.FilterCount, s.WriteCount,
		s.ReadSkipCount, s.WriteSkipCount, s.ProcessSkipCount, s.CommitCount, s.RollbackCount)
}

func (se *StepExecution) String() string {
	return fmt.Sprintf("%s, name=%s, status=%s, exitStatus=%s", se.describe("StepExecution"), se.stepName, se.Status(), se.ExitStatus().ExitCode())
}
