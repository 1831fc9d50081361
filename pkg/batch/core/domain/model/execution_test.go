package model

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJobExecution(t *testing.T) *JobExecution {
	t.Helper()
	ji, err := NewJobInstanceWithID(1, "PAYROLL")
	require.NoError(t, err)
	params := NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	return NewJobExecutionWithID(ji, 10, params, "payroll.yaml")
}

func TestEntity_IncrementVersion(t *testing.T) {
	var e Entity
	assert.False(t, e.HasVersion())
	e.IncrementVersion()
	assert.True(t, e.HasVersion())
	assert.Equal(t, 0, e.Version())
	e.IncrementVersion()
	assert.Equal(t, 1, e.Version())
}

func TestJobInstance_Equality(t *testing.T) {
	_, err := NewJobInstance("")
	assert.ErrorIs(t, err, ErrEmptyJobName)

	a, _ := NewJobInstanceWithID(5, "job")
	b, _ := NewJobInstanceWithID(5, "job")
	c, _ := NewJobInstance("job")
	d, _ := NewJobInstance("job")

	assert.True(t, a.Equals(b))
	assert.False(t, c.Equals(d), "without ids only the same instance is equal")
	assert.True(t, c.Equals(c))
	assert.False(t, a.Equals(c))
	assert.Equal(t, "JobInstance: id=5, version=nil, Job=[job]", a.String())
}

func TestJobExecution_InitialState(t *testing.T) {
	je := newTestJobExecution(t)

	assert.Equal(t, BatchStatusStarting, je.Status())
	assert.Equal(t, ExitStatusUnknown, je.ExitStatus())
	assert.NotNil(t, je.CreateTime())
	assert.Nil(t, je.StartTime())
	assert.True(t, je.IsRunning())
	assert.Equal(t, int64(1), je.JobID())
	assert.NotNil(t, je.ExecutionContext())

	je.SetEndTime(time.Now())
	assert.False(t, je.IsRunning())
}

func TestJobExecution_UpgradeStatusThenStop(t *testing.T) {
	je := newTestJobExecution(t)
	step1, err := je.CreateStepExecution("step1")
	require.NoError(t, err)
	step2, err := je.CreateStepExecution("step2")
	require.NoError(t, err)

	je.UpgradeStatus(BatchStatusCompleted)
	assert.Equal(t, BatchStatusCompleted, je.Status())

	je.Stop()
	assert.Equal(t, BatchStatusStopping, je.Status())
	assert.True(t, je.IsStopping())
	assert.True(t, step1.IsTerminateOnly())
	assert.True(t, step2.IsTerminateOnly())
}

func TestJobExecution_UpgradeStatusNeverRegresses(t *testing.T) {
	je := newTestJobExecution(t)
	je.SetStatus(BatchStatusFailed)
	je.UpgradeStatus(BatchStatusStarted)
	assert.Equal(t, BatchStatusFailed, je.Status())
}

func TestJobExecution_StepExecutionsAreDuplicateFree(t *testing.T) {
	je := newTestJobExecution(t)
	se, err := NewStepExecutionWithID("step", je, 100)
	require.NoError(t, err)
	twin, err := NewStepExecutionWithID("step", je, 100)
	require.NoError(t, err)
	unsaved1, _ := NewStepExecution("step", je)
	unsaved2, _ := NewStepExecution("step", je)

	assert.True(t, je.AddStepExecution(se))
	assert.False(t, je.AddStepExecution(twin))
	assert.True(t, je.AddStepExecution(unsaved1))
	assert.True(t, je.AddStepExecution(unsaved2))
	assert.False(t, je.AddStepExecution(unsaved1))
	assert.Len(t, je.StepExecutions(), 3)
}

func TestJobExecution_ConcurrentStepRegistration(t *testing.T) {
	je := newTestJobExecution(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			se, _ := NewStepExecutionWithID("step", je, id%10)
			je.AddStepExecution(se)
		}(int64(i))
	}
	wg.Wait()
	assert.Len(t, je.StepExecutions(), 10)
}

func TestJobExecution_FailureExceptions(t *testing.T) {
	je := newTestJobExecution(t)
	se, _ := je.CreateStepExecution("step")
	jobErr := errors.New("job failed")
	stepErr := errors.New("step failed")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			je.AddFailureException(errors.New("concurrent"))
		}()
	}
	wg.Wait()
	je.AddFailureException(jobErr)
	se.AddFailureException(stepErr)

	assert.Len(t, je.FailureExceptions(), 21)
	all := je.AllFailureExceptions()
	assert.Len(t, all, 22)
	assert.Contains(t, all, stepErr)

	err := je.FailureError()
	require.Error(t, err)
	assert.ErrorIs(t, err, stepErr)
	assert.Nil(t, newTestJobExecution(t).FailureError())
}

// fieldErrors is an error whose dynamic type is not comparable.
type fieldErrors struct {
	fields []string
}

func (e fieldErrors) Error() string { return fmt.Sprintf("invalid fields %v", e.fields) }

func TestJobExecution_AllFailureExceptionsWithUncomparableErrors(t *testing.T) {
	je := newTestJobExecution(t)
	se, _ := je.CreateStepExecution("validate")
	shared := errors.New("shared")
	je.AddFailureException(fieldErrors{fields: []string{"amount"}})
	je.AddFailureException(shared)
	se.AddFailureException(fieldErrors{fields: []string{"currency"}})
	se.AddFailureException(shared)

	var all []error
	require.NotPanics(t, func() { all = je.AllFailureExceptions() })
	assert.Len(t, all, 3)
	assert.Equal(t, shared, all[1])
}

func TestJobExecution_SnapshotIsConsistent(t *testing.T) {
	je := newTestJobExecution(t)
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	je.SetStartTime(start)
	je.SetStatus(BatchStatusStarted)

	state := je.Snapshot()
	assert.Equal(t, BatchStatusStarted, state.Status)
	assert.Equal(t, ExitStatusUnknown, state.ExitStatus)
	require.NotNil(t, state.StartTime)
	assert.Equal(t, start, *state.StartTime)
	assert.Nil(t, state.EndTime)
	require.NotNil(t, state.CreateTime)

	*state.StartTime = start.Add(time.Hour)
	assert.Equal(t, start, *je.StartTime(), "snapshot times are copies")
}

func TestJobExecution_CloneIsIndependent(t *testing.T) {
	je := newTestJobExecution(t)
	je.SetVersion(2)
	je.ExecutionContext().Put("offset", 5)
	se, _ := NewStepExecutionWithID("step", je, 7)
	je.AddStepExecution(se)

	cp := je.Clone()
	require.Len(t, cp.StepExecutions(), 1)
	assert.True(t, cp.Equals(je))
	assert.Equal(t, 2, cp.Version())
	assert.Same(t, cp, cp.StepExecutions()[0].JobExecution())

	cp.SetStatus(BatchStatusFailed)
	cp.ExecutionContext().Put("offset", 6)
	cp.StepExecutions()[0].SetReadCount(9)
	cp.SetVersion(3)

	assert.Equal(t, BatchStatusStarting, je.Status())
	v, _ := je.ExecutionContext().GetInt("offset")
	assert.Equal(t, 5, v)
	assert.Equal(t, 0, se.ReadCount())
	assert.Equal(t, 2, je.Version())
	assert.Empty(t, je.CloneWithoutSteps().StepExecutions())
}

func TestStepExecution_Defaults(t *testing.T) {
	je := newTestJobExecution(t)
	_, err := NewStepExecution("", je)
	assert.ErrorIs(t, err, ErrEmptyStepName)

	se, err := NewStepExecution("step", je)
	require.NoError(t, err)
	assert.Equal(t, BatchStatusStarting, se.Status())
	assert.Equal(t, ExitStatusExecuting, se.ExitStatus())
	assert.NotNil(t, se.StartTime())
	assert.Equal(t, int64(10), se.JobExecutionID())
	assert.Equal(t, "2024-01-01", se.JobParameters().GetString("date"))
	assert.Empty(t, je.StepExecutions(), "constructor does not register the step")
}

func TestStepExecution_Equality(t *testing.T) {
	je := newTestJobExecution(t)
	other := NewJobExecutionWithID(nil, 11, NewJobParameters(), "")

	a, _ := NewStepExecutionWithID("step", je, 1)
	b, _ := NewStepExecutionWithID("step", je, 1)
	c, _ := NewStepExecutionWithID("other", je, 1)
	d, _ := NewStepExecutionWithID("step", other, 1)

	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(d))
}

func TestStepExecution_ApplyContributions(t *testing.T) {
	je := newTestJobExecution(t)
	se, _ := je.CreateStepExecution("step")

	first := se.CreateStepContribution()
	first.IncrementReadCountBy(3)
	second := se.CreateStepContribution()
	for i := 0; i < 5; i++ {
		second.IncrementReadCount()
	}
	second.IncrementWriteCount(4)
	second.IncrementFilterCount(1)
	second.SetExitStatus(ExitStatusCompleted)

	se.Apply(first)
	se.Apply(second)

	assert.Equal(t, 8, se.ReadCount())
	assert.Equal(t, 4, se.WriteCount())
	assert.Equal(t, 1, se.FilterCount())
	assert.Equal(t, ExitCodeCompleted, se.ExitStatus().ExitCode())
}

func TestStepExecution_ConcurrentApply(t *testing.T) {
	je := newTestJobExecution(t)
	se, _ := je.CreateStepExecution("step")

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := se.CreateStepContribution()
			c.IncrementReadCount()
			c.IncrementWriteCount(1)
			c.IncrementProcessSkipCount()
			se.Apply(c)
		}()
		go func() {
			defer wg.Done()
			se.IncrementRollbackCount()
			se.IncrementCommitCount()
		}()
	}
	wg.Wait()

	state := se.Snapshot()
	assert.Equal(t, workers, state.ReadCount)
	assert.Equal(t, workers, state.WriteCount)
	assert.Equal(t, workers, state.ProcessSkipCount)
	assert.Equal(t, workers, state.RollbackCount)
	assert.Equal(t, workers, state.CommitCount)
	assert.Equal(t, workers, se.SkipCount())
}

func TestStepContribution_SkipCounts(t *testing.T) {
	c := NewStepContribution(4)
	c.IncrementReadSkipCount()
	c.IncrementReadSkipCountBy(2)
	c.IncrementWriteSkipCount()
	c.IncrementProcessSkipCount()

	assert.Equal(t, 5, c.SkipCount())
	assert.Equal(t, 9, c.StepSkipCount())
	assert.Equal(t, ExitStatusExecuting, c.ExitStatus())
}

func TestStepExecution_TerminateOnlyIsOneWay(t *testing.T) {
	se, _ := NewStepExecution("step", nil)
	se.SetTerminateOnly()
	se.Restore(StepExecutionState{Status: BatchStatusStarted})
	assert.True(t, se.IsTerminateOnly())
	assert.Equal(t, int64(0), se.JobExecutionID())
}

func TestStepExecution_CloneIsIndependent(t *testing.T) {
	je := newTestJobExecution(t)
	se, _ := NewStepExecutionWithID("step", je, 3)
	se.SetVersion(1)
	se.SetReadCount(5)
	se.ExecutionContext().Put("k", "v")

	cp := se.Clone()
	assert.True(t, cp.Equals(se))
	assert.NotSame(t, je, cp.JobExecution())
	assert.Equal(t, 5, cp.ReadCount())

	cp.SetReadCount(6)
	cp.ExecutionContext().Put("k", "changed")
	assert.Equal(t, 5, se.ReadCount())
	v, _ := se.ExecutionContext().GetString("k")
	assert.Equal(t, "v", v)
}

func TestExecutionContext(t *testing.T) {
	ec := NewExecutionContext()
	assert.False(t, ec.IsDirty())

	ec.Put("nested", map[string]interface{}{"a": []interface{}{1.0, 2.0}})
	ec.Put("count", 3)
	assert.True(t, ec.IsDirty())
	assert.Equal(t, []string{"count", "nested"}, ec.Keys())

	cp := ec.Copy()
	cp.Entries()["nested"].(map[string]interface{})["a"] = "x"
	nested, _ := cp.Get("nested")
	nested.(map[string]interface{})["b"] = true
	orig, _ := ec.Get("nested")
	_, leaked := orig.(map[string]interface{})["b"]
	assert.False(t, leaked)

	data, err := ec.MarshalJSON()
	require.NoError(t, err)
	decoded := NewExecutionContext()
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.False(t, decoded.IsDirty())
	n, ok := decoded.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.True(t, decoded.Equals(ec))

	ec.Put("count", nil)
	assert.False(t, ec.ContainsKey("count"))
	ec.ClearDirtyFlag()
	assert.False(t, ec.IsDirty())
}
