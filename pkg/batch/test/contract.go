package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// Backend is one fresh, empty set of DAOs under test.
type Backend struct {
	Daos repository.Daos
}

// RunDaoContract runs the behavior every DAO backend must share.
// newBackend is called once per subtest and must return empty storage.
func RunDaoContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	t.Helper()

	t.Run("JobInstance", func(t *testing.T) { runJobInstanceContract(t, newBackend) })
	t.Run("JobExecution", func(t *testing.T) { runJobExecutionContract(t, newBackend) })
	t.Run("StepExecution", func(t *testing.T) { runStepExecutionContract(t, newBackend) })
	t.Run("ExecutionContext", func(t *testing.T) { runExecutionContextContract(t, newBackend) })
}

func mustCreateInstance(t *testing.T, daos repository.Daos, jobName string, params model.JobParameters) *model.JobInstance {
	t.Helper()
	ji, err := daos.JobInstanceDao.CreateJobInstance(context.Background(), jobName, params)
	require.NoError(t, err)
	return ji
}

func mustSaveExecution(t *testing.T, daos repository.Daos, ji *model.JobInstance, params model.JobParameters) *model.JobExecution {
	t.Helper()
	je := NewTestJobExecution(ji, params)
	require.NoError(t, daos.JobExecutionDao.SaveJobExecution(context.Background(), je))
	return je
}

func mustSaveStep(t *testing.T, daos repository.Daos, je *model.JobExecution, stepName string) *model.StepExecution {
	t.Helper()
	se := NewTestStepExecution(je, stepName)
	require.NoError(t, daos.StepExecutionDao.SaveStepExecution(context.Background(), se))
	return se
}

func runJobInstanceContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("CreateAndGet", func(t *testing.T) {
		daos := newBackend(t).Daos
		params := NewTestJobParameters(map[string]interface{}{"date": "2024-01-01", "run.id": 1})

		ji := mustCreateInstance(t, daos, "PAYROLL", params)
		assert.True(t, ji.HasID())
		assert.Equal(t, 0, ji.Version())
		assert.Equal(t, "PAYROLL", ji.JobName())

		found, err := daos.JobInstanceDao.GetJobInstance(ctx, "PAYROLL", params)
		require.NoError(t, err)
		assert.True(t, ji.Equals(found))

		byID, err := daos.JobInstanceDao.GetJobInstanceByID(ctx, ji.ID())
		require.NoError(t, err)
		assert.Equal(t, "PAYROLL", byID.JobName())
		assert.Equal(t, ji.ID(), byID.ID())
	})

	t.Run("DuplicateIsIllegal", func(t *testing.T) {
		daos := newBackend(t).Daos
		params := NewTestJobParameters(map[string]interface{}{"date": "2024-01-01"})
		mustCreateInstance(t, daos, "PAYROLL", params)

		_, err := daos.JobInstanceDao.CreateJobInstance(ctx, "PAYROLL", params)
		require.Error(t, err)
		assert.True(t, exception.IsIllegalArgument(err))

		_, err = daos.JobInstanceDao.CreateJobInstance(ctx, "INVOICING", params)
		assert.NoError(t, err, "the same key under another job name is a different instance")
	})

	t.Run("NonIdentifyingParametersDoNotChangeTheKey", func(t *testing.T) {
		daos := newBackend(t).Daos
		params := model.NewJobParametersBuilder().
			AddString("date", "2024-01-01").
			AddLong("attempt", 1, false).
			ToJobParameters()
		ji := mustCreateInstance(t, daos, "PAYROLL", params)

		other := model.NewJobParametersBuilder().
			AddString("date", "2024-01-01").
			AddLong("attempt", 2, false).
			ToJobParameters()
		found, err := daos.JobInstanceDao.GetJobInstance(ctx, "PAYROLL", other)
		require.NoError(t, err)
		assert.Equal(t, ji.ID(), found.ID())

		_, err = daos.JobInstanceDao.CreateJobInstance(ctx, "PAYROLL", other)
		assert.True(t, exception.IsIllegalArgument(err))
	})

	t.Run("EmptyParametersFormAKey", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "CLEANUP", model.NewJobParameters())

		found, err := daos.JobInstanceDao.GetJobInstance(ctx, "CLEANUP", model.NewJobParameters())
		require.NoError(t, err)
		assert.Equal(t, ji.ID(), found.ID())
	})

	t.Run("NotFound", func(t *testing.T) {
		daos := newBackend(t).Daos

		_, err := daos.JobInstanceDao.GetJobInstance(ctx, "UNKNOWN", model.NewJobParameters())
		assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)

		_, err = daos.JobInstanceDao.GetJobInstanceByID(ctx, 4242)
		assert.ErrorIs(t, err, repository.ErrJobInstanceNotFound)
	})

	t.Run("ForExecution", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		found, err := daos.JobInstanceDao.GetJobInstanceForExecution(ctx, je)
		require.NoError(t, err)
		assert.Equal(t, ji.ID(), found.ID())
		assert.Equal(t, "PAYROLL", found.JobName())
	})

	t.Run("PagingIsNewestFirst", func(t *testing.T) {
		daos := newBackend(t).Daos
		var ids []int64
		for i := 0; i < 5; i++ {
			ji := mustCreateInstance(t, daos, "PAYROLL", NewTestJobParameters(map[string]interface{}{"run.id": i}))
			ids = append(ids, ji.ID())
		}
		mustCreateInstance(t, daos, "INVOICING", NewUniqueJobParameters())

		page, err := daos.JobInstanceDao.GetJobInstances(ctx, "PAYROLL", 1, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[3], page[0].ID())
		assert.Equal(t, ids[2], page[1].ID())

		all, err := daos.JobInstanceDao.GetJobInstances(ctx, "PAYROLL", 0, 100)
		require.NoError(t, err)
		assert.Len(t, all, 5)

		beyond, err := daos.JobInstanceDao.GetJobInstances(ctx, "PAYROLL", 10, 5)
		require.NoError(t, err)
		assert.Empty(t, beyond)

		none, err := daos.JobInstanceDao.GetJobInstances(ctx, "PAYROLL", 0, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("FindByNameWildcard", func(t *testing.T) {
		daos := newBackend(t).Daos
		mustCreateInstance(t, daos, "PAYROLL_DAILY", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "PAYROLL_MONTHLY", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "INVOICING", NewUniqueJobParameters())

		found, err := daos.JobInstanceDao.FindJobInstancesByName(ctx, "PAYROLL*", 0, 10)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, "PAYROLL_MONTHLY", found[0].JobName())
		assert.Equal(t, "PAYROLL_DAILY", found[1].JobName())

		exact, err := daos.JobInstanceDao.FindJobInstancesByName(ctx, "INVOICING", 0, 10)
		require.NoError(t, err)
		assert.Len(t, exact, 1)
	})

	t.Run("FindJobInstancesByNameTreatsLikeCharactersLiterally", func(t *testing.T) {
		daos := newBackend(t).Daos
		mustCreateInstance(t, daos, "load_a", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "loadXa", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "load%b", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "load!c", NewUniqueJobParameters())

		found, err := daos.JobInstanceDao.FindJobInstancesByName(ctx, "load_*", 0, 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "load_a", found[0].JobName())

		found, err = daos.JobInstanceDao.FindJobInstancesByName(ctx, "load%*", 0, 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "load%b", found[0].JobName())

		found, err = daos.JobInstanceDao.FindJobInstancesByName(ctx, "*!c", 0, 10)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "load!c", found[0].JobName())
	})

	t.Run("JobNamesAndCount", func(t *testing.T) {
		daos := newBackend(t).Daos

		names, err := daos.JobInstanceDao.GetJobNames(ctx)
		require.NoError(t, err)
		assert.NotNil(t, names)
		assert.Empty(t, names)

		mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		mustCreateInstance(t, daos, "INVOICING", NewUniqueJobParameters())

		names, err = daos.JobInstanceDao.GetJobNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"INVOICING", "PAYROLL"}, names)

		count, err := daos.JobInstanceDao.GetJobInstanceCount(ctx, "PAYROLL")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		_, err = daos.JobInstanceDao.GetJobInstanceCount(ctx, "UNKNOWN")
		require.Error(t, err)
		assert.True(t, exception.IsNoSuchJob(err))
	})
}

func runJobExecutionContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	t.Run("SaveAssignsIDAndVersion", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		assert.True(t, je.HasID())
		assert.Equal(t, 0, je.Version())

		second := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
		assert.NotEqual(t, je.ID(), second.ID())
	})

	t.Run("SaveTwiceIsIllegal", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		err := daos.JobExecutionDao.SaveJobExecution(ctx, je)
		require.Error(t, err)
		assert.True(t, exception.IsIllegalArgument(err))

		err = daos.JobExecutionDao.SaveJobExecution(ctx, nil)
		assert.True(t, exception.IsIllegalArgument(err))
	})

	t.Run("RoundTrip", func(t *testing.T) {
		daos := newBackend(t).Daos
		date := time.Date(2024, 1, 31, 10, 30, 0, 123000000, time.UTC)
		params := model.NewJobParametersBuilder().
			AddString("input", "payroll.csv").
			AddLong("run.id", 7).
			AddDouble("rate", 1.5).
			AddDate("date", date).
			AddString("note", "nightly", false).
			ToJobParameters()
		ji := mustCreateInstance(t, daos, "PAYROLL", params)

		je := NewTestJobExecution(ji, params)
		start := Now()
		je.SetStartTime(start)
		je.SetStatus(model.BatchStatusStarted)
		require.NoError(t, daos.JobExecutionDao.SaveJobExecution(ctx, je))

		found, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		assert.Equal(t, je.ID(), found.ID())
		assert.Equal(t, 0, found.Version())
		assert.Equal(t, model.BatchStatusStarted, found.Status())
		assert.Equal(t, ji.ID(), found.JobID())
		assert.Equal(t, "PAYROLL", found.JobInstance().JobName())
		require.NotNil(t, found.StartTime())
		assert.True(t, start.Equal(*found.StartTime()))
		assert.Nil(t, found.EndTime())
		require.NotNil(t, found.CreateTime())
		assert.WithinDuration(t, *je.CreateTime(), *found.CreateTime(), time.Millisecond)

		assert.True(t, params.Equals(found.JobParameters()), "got %s", found.JobParameters())
		note, ok := found.JobParameters().Get("note")
		require.True(t, ok)
		assert.False(t, note.IsIdentifying())
		assert.Equal(t, int64(7), found.JobParameters().GetLong("run.id"))
		require.NotNil(t, found.JobParameters().GetDate("date"))
		assert.True(t, date.Equal(*found.JobParameters().GetDate("date")))

		_, err = daos.JobExecutionDao.GetJobExecution(ctx, 4242)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	})

	t.Run("UpdateIncrementsVersion", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		MarkExecutionAsFailed(je, errors.New("disk full"))
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, je))
		assert.Equal(t, 1, je.Version())

		found, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, found.Version())
		assert.Equal(t, model.BatchStatusFailed, found.Status())
		assert.Equal(t, model.ExitCodeFailed, found.ExitStatus().ExitCode())
		assert.Contains(t, found.ExitStatus().ExitDescription(), "disk full")
		require.NotNil(t, found.EndTime())
		assert.True(t, je.EndTime().Equal(*found.EndTime()))

		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, je))
		assert.Equal(t, 2, je.Version())
	})

	t.Run("StaleUpdateFails", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		other, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		other.SetStatus(model.BatchStatusStopping)
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, other))

		je.SetStatus(model.BatchStatusCompleted)
		err = daos.JobExecutionDao.UpdateJobExecution(ctx, je)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, 0, je.Version(), "a failed update leaves the version alone")

		found, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusStopping, found.Status())
	})

	t.Run("UpdateUnsavedIsRejected", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())

		unsaved := NewTestJobExecution(ji, NewUniqueJobParameters())
		err := daos.JobExecutionDao.UpdateJobExecution(ctx, unsaved)
		assert.True(t, exception.IsIllegalArgument(err))

		unknown := model.NewJobExecutionWithID(ji, 4242, NewUniqueJobParameters(), "")
		unknown.SetVersion(0)
		err = daos.JobExecutionDao.UpdateJobExecution(ctx, unknown)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	})

	t.Run("FindAndLast", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		other := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())

		_, err := daos.JobExecutionDao.GetLastJobExecution(ctx, ji)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

		first := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
		second := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
		mustSaveExecution(t, daos, other, NewUniqueJobParameters())

		executions, err := daos.JobExecutionDao.FindJobExecutions(ctx, ji)
		require.NoError(t, err)
		require.Len(t, executions, 2)
		assert.Equal(t, second.ID(), executions[0].ID())
		assert.Equal(t, first.ID(), executions[1].ID())

		last, err := daos.JobExecutionDao.GetLastJobExecution(ctx, ji)
		require.NoError(t, err)
		assert.Equal(t, second.ID(), last.ID())
	})

	t.Run("FindRunning", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		done := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
		MarkExecutionAsCompleted(done)
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, done))
		running := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())

		invoicing := mustCreateInstance(t, daos, "INVOICING", NewUniqueJobParameters())
		mustSaveExecution(t, daos, invoicing, NewUniqueJobParameters())

		found, err := daos.JobExecutionDao.FindRunningJobExecutions(ctx, "PAYROLL")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, running.ID(), found[0].ID())

		none, err := daos.JobExecutionDao.FindRunningJobExecutions(ctx, "UNKNOWN")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("SynchronizeStatus", func(t *testing.T) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		je := mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
		je.SetStatus(model.BatchStatusStarted)
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, je))

		require.NoError(t, daos.JobExecutionDao.SynchronizeStatus(ctx, je))
		assert.Equal(t, model.BatchStatusStarted, je.Status(), "same version leaves the execution alone")

		other, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		other.SetStatus(model.BatchStatusStopping)
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, other))

		require.NoError(t, daos.JobExecutionDao.SynchronizeStatus(ctx, je))
		assert.Equal(t, model.BatchStatusStopping, je.Status())
		assert.Equal(t, other.Version(), je.Version())
		require.NoError(t, daos.JobExecutionDao.UpdateJobExecution(ctx, je), "a synchronized execution can be updated")

		missing := model.NewJobExecutionWithID(ji, 4242, NewUniqueJobParameters(), "")
		err = daos.JobExecutionDao.SynchronizeStatus(ctx, missing)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	})
}

func runStepExecutionContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	setup := func(t *testing.T) (repository.Daos, *model.JobExecution) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		return daos, mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		daos, je := setup(t)
		se := NewTestStepExecution(je, "load")
		start := Now()
		se.SetStartTime(start)
		se.SetStatus(model.BatchStatusStarted)
		se.SetReadCount(10)
		se.SetWriteCount(8)
		se.SetFilterCount(2)
		se.SetCommitCount(3)
		se.SetReadSkipCount(1)
		require.NoError(t, daos.StepExecutionDao.SaveStepExecution(ctx, se))
		assert.True(t, se.HasID())
		assert.Equal(t, 0, se.Version())

		found, err := daos.StepExecutionDao.GetStepExecution(ctx, je, se.ID())
		require.NoError(t, err)
		assert.Equal(t, "load", found.StepName())
		assert.Equal(t, je.ID(), found.JobExecutionID())
		assert.Equal(t, model.BatchStatusStarted, found.Status())
		assert.Equal(t, 10, found.ReadCount())
		assert.Equal(t, 8, found.WriteCount())
		assert.Equal(t, 2, found.FilterCount())
		assert.Equal(t, 3, found.CommitCount())
		assert.Equal(t, 1, found.ReadSkipCount())
		require.NotNil(t, found.StartTime())
		assert.True(t, start.Equal(*found.StartTime()))
		assert.Nil(t, found.EndTime())

		err = daos.StepExecutionDao.SaveStepExecution(ctx, se)
		assert.True(t, exception.IsIllegalArgument(err), "saving twice is illegal")

		_, err = daos.StepExecutionDao.GetStepExecution(ctx, je, 4242)
		assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	})

	t.Run("NilIsIllegal", func(t *testing.T) {
		daos, _ := setup(t)

		assert.True(t, exception.IsIllegalArgument(daos.StepExecutionDao.SaveStepExecution(ctx, nil)))
		assert.True(t, exception.IsIllegalArgument(daos.StepExecutionDao.SaveStepExecutions(ctx, nil)))
		assert.NoError(t, daos.StepExecutionDao.SaveStepExecutions(ctx, []*model.StepExecution{}))
	})

	t.Run("UpdateAndStale", func(t *testing.T) {
		daos, je := setup(t)
		se := mustSaveStep(t, daos, je, "load")

		stale, err := daos.StepExecutionDao.GetStepExecution(ctx, je, se.ID())
		require.NoError(t, err)

		MarkStepAsCompleted(se)
		se.SetWriteCount(42)
		require.NoError(t, daos.StepExecutionDao.UpdateStepExecution(ctx, se))
		assert.Equal(t, 1, se.Version())

		found, err := daos.StepExecutionDao.GetStepExecution(ctx, je, se.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, found.Version())
		assert.Equal(t, model.BatchStatusCompleted, found.Status())
		assert.Equal(t, model.ExitCodeCompleted, found.ExitStatus().ExitCode())
		assert.Equal(t, 42, found.WriteCount())

		err = daos.StepExecutionDao.UpdateStepExecution(ctx, stale)
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, 0, stale.Version())
	})

	t.Run("UpdateUnknownIsNotFound", func(t *testing.T) {
		daos, je := setup(t)
		se, err := model.NewStepExecutionWithID("ghost", je, 4242)
		require.NoError(t, err)
		se.SetVersion(0)

		err = daos.StepExecutionDao.UpdateStepExecution(ctx, se)
		assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	})

	t.Run("AddStepExecutionsInIDOrder", func(t *testing.T) {
		daos, je := setup(t)
		steps := []*model.StepExecution{
			NewTestStepExecution(je, "extract"),
			NewTestStepExecution(je, "transform"),
			NewTestStepExecution(je, "load"),
		}
		require.NoError(t, daos.StepExecutionDao.SaveStepExecutions(ctx, steps))
		for _, se := range steps {
			assert.True(t, se.HasID())
		}

		loaded, err := daos.JobExecutionDao.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		assert.Empty(t, loaded.StepExecutions())

		require.NoError(t, daos.StepExecutionDao.AddStepExecutions(ctx, loaded))
		got := loaded.StepExecutions()
		require.Len(t, got, 3)
		assert.Equal(t, "extract", got[0].StepName())
		assert.Equal(t, "transform", got[1].StepName())
		assert.Equal(t, "load", got[2].StepName())
		for _, se := range got {
			assert.Same(t, loaded, se.JobExecution())
		}
	})
}

func runExecutionContextContract(t *testing.T, newBackend func(t *testing.T) Backend) {
	ctx := context.Background()

	setup := func(t *testing.T) (repository.Daos, *model.JobExecution) {
		daos := newBackend(t).Daos
		ji := mustCreateInstance(t, daos, "PAYROLL", NewUniqueJobParameters())
		return daos, mustSaveExecution(t, daos, ji, NewUniqueJobParameters())
	}

	t.Run("EmptyWhenNeverSaved", func(t *testing.T) {
		daos, je := setup(t)
		se := mustSaveStep(t, daos, je, "load")

		jobCtx, err := daos.ExecutionContextDao.GetJobExecutionContext(ctx, je)
		require.NoError(t, err)
		assert.True(t, jobCtx.IsEmpty())

		stepCtx, err := daos.ExecutionContextDao.GetStepExecutionContext(ctx, se)
		require.NoError(t, err)
		assert.True(t, stepCtx.IsEmpty())
	})

	t.Run("SaveThenUpdate", func(t *testing.T) {
		daos, je := setup(t)
		je.ExecutionContext().Put("file", "payroll.csv")
		je.ExecutionContext().Put("offset", 100)
		require.NoError(t, daos.ExecutionContextDao.SaveJobExecutionContext(ctx, je))

		stored, err := daos.ExecutionContextDao.GetJobExecutionContext(ctx, je)
		require.NoError(t, err)
		file, _ := stored.GetString("file")
		assert.Equal(t, "payroll.csv", file)
		offset, ok := stored.GetInt64("offset")
		require.True(t, ok)
		assert.Equal(t, int64(100), offset)

		err = daos.ExecutionContextDao.SaveJobExecutionContext(ctx, je)
		assert.True(t, exception.IsIllegalArgument(err), "saving twice is illegal")

		je.ExecutionContext().Put("offset", 250)
		require.NoError(t, daos.ExecutionContextDao.UpdateJobExecutionContext(ctx, je))
		stored, err = daos.ExecutionContextDao.GetJobExecutionContext(ctx, je)
		require.NoError(t, err)
		offset, _ = stored.GetInt64("offset")
		assert.Equal(t, int64(250), offset)

		require.NoError(t, daos.ExecutionContextDao.UpdateJobExecutionContext(ctx, je), "an unchanged update succeeds")
	})

	t.Run("UpdateWithoutSaveIsNotFound", func(t *testing.T) {
		daos, je := setup(t)
		se := mustSaveStep(t, daos, je, "load")

		err := daos.ExecutionContextDao.UpdateJobExecutionContext(ctx, je)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)

		err = daos.ExecutionContextDao.UpdateStepExecutionContext(ctx, se)
		assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)
	})

	t.Run("JobAndStepContextsAreSeparate", func(t *testing.T) {
		daos, je := setup(t)
		se := mustSaveStep(t, daos, je, "load")
		je.ExecutionContext().Put("owner", "job")
		se.ExecutionContext().Put("owner", "step")

		require.NoError(t, daos.ExecutionContextDao.SaveJobExecutionContext(ctx, je))
		require.NoError(t, daos.ExecutionContextDao.SaveStepExecutionContext(ctx, se))

		jobCtx, err := daos.ExecutionContextDao.GetJobExecutionContext(ctx, je)
		require.NoError(t, err)
		stepCtx, err := daos.ExecutionContextDao.GetStepExecutionContext(ctx, se)
		require.NoError(t, err)
		owner, _ := jobCtx.GetString("owner")
		assert.Equal(t, "job", owner)
		owner, _ = stepCtx.GetString("owner")
		assert.Equal(t, "step", owner)

		se.ExecutionContext().Put("owner", "step-updated")
		require.NoError(t, daos.ExecutionContextDao.UpdateStepExecutionContext(ctx, se))
		jobCtx, err = daos.ExecutionContextDao.GetJobExecutionContext(ctx, je)
		require.NoError(t, err)
		owner, _ = jobCtx.GetString("owner")
		assert.Equal(t, "job", owner)
	})

	t.Run("SaveMany", func(t *testing.T) {
		daos, je := setup(t)
		first := mustSaveStep(t, daos, je, "extract")
		second := mustSaveStep(t, daos, je, "load")
		first.ExecutionContext().Put("step", "extract")
		second.ExecutionContext().Put("step", "load")

		require.NoError(t, daos.ExecutionContextDao.SaveStepExecutionContexts(ctx, []*model.StepExecution{first, second}))

		for _, se := range []*model.StepExecution{first, second} {
			stored, err := daos.ExecutionContextDao.GetStepExecutionContext(ctx, se)
			require.NoError(t, err)
			name, _ := stored.GetString("step")
			assert.Equal(t, se.StepName(), name)
		}

		err := daos.ExecutionContextDao.SaveStepExecutionContexts(ctx, nil)
		assert.True(t, exception.IsIllegalArgument(err))
	})

	t.Run("UnsavedOwnerIsIllegal", func(t *testing.T) {
		daos, je := setup(t)
		unsaved := NewTestStepExecution(je, "load")

		_, err := daos.ExecutionContextDao.GetStepExecutionContext(ctx, unsaved)
		assert.True(t, exception.IsIllegalArgument(err))
		assert.True(t, exception.IsIllegalArgument(daos.ExecutionContextDao.SaveStepExecutionContext(ctx, unsaved)))
	})
}
