package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

// countingRecorder counts the calls the repository makes.
type countingRecorder struct {
	metrics.NoOpMetricRecorder
	jobStarts  int
	jobEnds    int
	stepStarts int
	stepEnds   int
	failedOps  map[string]int
	lockFails  []string
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{failedOps: map[string]int{}}
}

func (r *countingRecorder) RecordJobStart(context.Context, *model.JobExecution)   { r.jobStarts++ }
func (r *countingRecorder) RecordJobEnd(context.Context, *model.JobExecution)     { r.jobEnds++ }
func (r *countingRecorder) RecordStepStart(context.Context, *model.StepExecution) { r.stepStarts++ }
func (r *countingRecorder) RecordStepEnd(context.Context, *model.StepExecution)   { r.stepEnds++ }

func (r *countingRecorder) RecordRepositoryOperation(_ context.Context, operation string, _ time.Duration, err error) {
	if err != nil {
		r.failedOps[operation]++
	}
}

func (r *countingRecorder) RecordOptimisticLockFailure(_ context.Context, entity string) {
	r.lockFails = append(r.lockFails, entity)
}

func payrollParams() model.JobParameters {
	return model.NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
}

func failExecution(t *testing.T, repo *SimpleJobRepository, je *model.JobExecution) {
	t.Helper()
	batchtest.MarkExecutionAsFailed(je, errors.New("disk full"))
	require.NoError(t, repo.UpdateJobExecution(context.Background(), je))
}

func TestSimpleJobRepository_CreateJobExecution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		recorder := newCountingRecorder()
		repo := NewSimpleJobRepository(daos, recorder, nil)

		exists, err := repo.IsJobInstanceExists(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)
		assert.False(t, exists)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "payroll.yaml")
		require.NoError(t, err)
		assert.True(t, je.HasID())
		assert.Equal(t, 0, je.Version())
		assert.Equal(t, model.BatchStatusStarting, je.Status())
		assert.NotNil(t, je.LastUpdated())
		assert.Equal(t, "payroll.yaml", je.JobConfigurationName())
		assert.Equal(t, 1, recorder.jobStarts)

		exists, err = repo.IsJobInstanceExists(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestSimpleJobRepository_CreateJobExecution_EmptyNameIsIllegal(t *testing.T) {
	repo := NewSimpleJobRepository(backends["inmemory"](t), nil, nil)
	_, err := repo.CreateJobExecution(context.Background(), "", model.NewJobParameters(), "")
	assert.True(t, exception.IsIllegalArgument(err))
}

func TestSimpleJobRepository_RefusesConcurrentExecution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		recorder := newCountingRecorder()
		repo := NewSimpleJobRepository(daos, recorder, nil)

		_, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)

		_, err = repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.Error(t, err)
		assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)
		assert.Equal(t, 1, recorder.failedOps["SimpleJobRepository.CreateJobExecution"])
	})
}

func TestSimpleJobRepository_RefusesCompletedInstance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		recorder := newCountingRecorder()
		repo := NewSimpleJobRepository(daos, recorder, nil)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		batchtest.MarkExecutionAsCompleted(je)
		require.NoError(t, repo.UpdateJobExecution(ctx, je))
		assert.Equal(t, 1, recorder.jobEnds)

		_, err = repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		assert.ErrorIs(t, err, exception.ErrJobInstanceAlreadyComplete)
	})
}

func TestSimpleJobRepository_CompletedInstanceWithoutParametersRunsAgain(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)

		first, err := repo.CreateJobExecution(ctx, "CLEANUP", model.NewJobParameters(), "")
		require.NoError(t, err)
		batchtest.MarkExecutionAsCompleted(first)
		require.NoError(t, repo.UpdateJobExecution(ctx, first))

		second, err := repo.CreateJobExecution(ctx, "CLEANUP", model.NewJobParameters(), "")
		require.NoError(t, err)
		assert.Equal(t, first.JobID(), second.JobID())
		assert.NotEqual(t, first.ID(), second.ID())
	})
}

func TestSimpleJobRepository_RestartInheritsExecutionContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)

		first, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		first.ExecutionContext().Put("reader.offset", int64(42))
		require.NoError(t, repo.UpdateJobExecutionContext(ctx, first))
		failExecution(t, repo, first)

		second, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		assert.Equal(t, first.JobID(), second.JobID())
		offset, ok := second.ExecutionContext().GetInt64("reader.offset")
		require.True(t, ok)
		assert.Equal(t, int64(42), offset)

		last, err := repo.GetLastJobExecution(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)
		assert.Equal(t, second.ID(), last.ID())
	})
}

func TestSimpleJobRepository_UnknownStatusCannotRestart(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		je.SetStatus(model.BatchStatusUnknown)
		je.SetEndTime(batchtest.Now())
		require.NoError(t, repo.UpdateJobExecution(ctx, je))

		_, err = repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		assert.ErrorIs(t, err, exception.ErrJobRestart)
	})
}

func TestSimpleJobRepository_StepExecutions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		recorder := newCountingRecorder()
		repo := NewSimpleJobRepository(daos, recorder, nil)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)

		load := batchtest.NewTestStepExecution(je, "load")
		load.ExecutionContext().Put("chunk", 3)
		require.NoError(t, repo.AddStepExecution(ctx, load))
		require.NoError(t, repo.AddStepExecutions(ctx, []*model.StepExecution{
			batchtest.NewTestStepExecution(je, "transform"),
			batchtest.NewTestStepExecution(je, "report"),
		}))
		assert.Equal(t, 3, recorder.stepStarts)

		load.SetReadCount(10)
		batchtest.MarkStepAsCompleted(load)
		require.NoError(t, repo.UpdateStepExecution(ctx, load))
		assert.Equal(t, 1, load.Version())
		assert.Equal(t, 1, recorder.stepEnds)

		last, err := repo.GetLastStepExecution(ctx, je.JobInstance(), "load")
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, load.ID(), last.ID())
		assert.Equal(t, 10, last.ReadCount())
		chunk, ok := last.ExecutionContext().GetInt("chunk")
		require.True(t, ok)
		assert.Equal(t, 3, chunk)

		count, err := repo.GetStepExecutionCount(ctx, je.JobInstance(), "load")
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		missing, err := repo.GetLastStepExecution(ctx, je.JobInstance(), "archive")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestSimpleJobRepository_LastStepExecutionSpansExecutions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)

		first, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		early := batchtest.NewTestStepExecution(first, "load")
		early.SetStartTime(batchtest.Now().Add(-time.Hour))
		require.NoError(t, repo.AddStepExecution(ctx, early))
		failExecution(t, repo, first)

		second, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		late := batchtest.NewTestStepExecution(second, "load")
		require.NoError(t, repo.AddStepExecution(ctx, late))

		last, err := repo.GetLastStepExecution(ctx, second.JobInstance(), "load")
		require.NoError(t, err)
		assert.Equal(t, late.ID(), last.ID())

		count, err := repo.GetStepExecutionCount(ctx, second.JobInstance(), "load")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestSimpleJobRepository_StaleStepUpdateIsCounted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		recorder := newCountingRecorder()
		repo := NewSimpleJobRepository(daos, recorder, nil)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		se := batchtest.NewTestStepExecution(je, "load")
		require.NoError(t, repo.AddStepExecution(ctx, se))
		require.NoError(t, repo.UpdateStepExecution(ctx, se))

		se.SetVersion(0)
		err = repo.UpdateStepExecution(ctx, se)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		require.Len(t, recorder.lockFails, 1)
	})
}

func TestSimpleJobRepository_StepSeesJobStop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)
		explorer := NewSimpleJobExplorer(daos)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		se := batchtest.NewTestStepExecution(je, "load")
		require.NoError(t, repo.AddStepExecution(ctx, se))

		// Another process stops the job.
		other, err := explorer.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		other.SetStatus(model.BatchStatusStopping)
		require.NoError(t, repo.UpdateJobExecution(ctx, other))

		require.NoError(t, repo.UpdateStepExecution(ctx, se))
		assert.True(t, se.IsTerminateOnly())
		assert.Equal(t, model.BatchStatusStopping, je.Status())
	})
}

func TestSimpleJobRepository_ValidatesArguments(t *testing.T) {
	ctx := context.Background()
	repo := NewSimpleJobRepository(backends["inmemory"](t), nil, nil)

	ji, err := model.NewJobInstance("PAYROLL")
	require.NoError(t, err)
	unsaved := batchtest.NewTestJobExecution(ji, model.NewJobParameters())

	assert.True(t, exception.IsIllegalArgument(repo.UpdateJobExecution(ctx, nil)))
	assert.True(t, exception.IsIllegalArgument(repo.UpdateJobExecution(ctx, unsaved)))
	assert.True(t, exception.IsIllegalArgument(repo.AddStepExecution(ctx, nil)))
	assert.True(t, exception.IsIllegalArgument(repo.AddStepExecution(ctx, batchtest.NewTestStepExecution(unsaved, "load"))))
	assert.True(t, exception.IsIllegalArgument(repo.AddStepExecutions(ctx, []*model.StepExecution{nil})))
}
