package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func newOperator(daos repository.Daos) (*DefaultJobOperator, *SimpleJobRepository, *SimpleJobExplorer) {
	repo := NewSimpleJobRepository(daos, nil, nil)
	explorer := NewSimpleJobExplorer(daos)
	return NewDefaultJobOperator(repo, explorer, nil), repo, explorer
}

func TestDefaultJobOperator_StopMarksJobAndSteps(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		operator, repo, explorer := newOperator(daos)

		je, err := operator.Start(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)
		running := batchtest.NewTestStepExecution(je, "load")
		done := batchtest.NewTestStepExecution(je, "extract")
		require.NoError(t, repo.AddStepExecutions(ctx, []*model.StepExecution{done, running}))
		batchtest.MarkStepAsCompleted(done)
		require.NoError(t, repo.UpdateStepExecution(ctx, done))

		stopped, err := operator.Stop(ctx, "PAYROLL")
		require.NoError(t, err)
		require.Len(t, stopped, 1)
		assert.Equal(t, model.BatchStatusStopping, stopped[0].Status())
		for _, se := range stopped[0].StepExecutions() {
			assert.True(t, se.IsTerminateOnly(), se.StepName())
		}

		reloaded, err := explorer.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusStopping, reloaded.Status())
		assert.Equal(t, 1, reloaded.Version())

		step, err := explorer.GetStepExecution(ctx, je.ID(), running.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, step.Version(), "the unfinished step was persisted")
		step, err = explorer.GetStepExecution(ctx, je.ID(), done.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, step.Version(), "the finished step was left alone")
	})
}

func TestDefaultJobOperator_StopWithoutRunningExecution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		operator, _, _ := newOperator(daos)
		_, err := operator.Stop(context.Background(), "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobExecutionNotRunning)
	})
}

func TestDefaultJobOperator_AbandonRequiresStoppedExecution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		operator, repo, _ := newOperator(daos)

		_, err := operator.Abandon(ctx, "PAYROLL")
		assert.True(t, exception.IsNoSuchJob(err))

		je, err := operator.Start(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)
		_, err = operator.Abandon(ctx, "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobExecutionNotStopped, "a running execution cannot be abandoned")

		je.SetStatus(model.BatchStatusStopped)
		require.NoError(t, repo.UpdateJobExecution(ctx, je))

		abandoned, err := operator.Abandon(ctx, "PAYROLL")
		require.NoError(t, err)
		assert.Equal(t, model.BatchStatusAbandoned, abandoned.Status())
		assert.NotNil(t, abandoned.EndTime())

		_, err = operator.Abandon(ctx, "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobExecutionNotStopped, "already abandoned")

		_, err = operator.Restart(ctx, "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobInstanceAlreadyComplete, "an abandoned instance cannot run again")
	})
}

func TestDefaultJobOperator_Restart(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		operator, repo, _ := newOperator(daos)

		je, err := operator.Start(ctx, "PAYROLL", payrollParams())
		require.NoError(t, err)

		_, err = operator.Restart(ctx, "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobRestart, "a running execution is not restartable")

		failExecution(t, repo, je)
		restarted, err := operator.Restart(ctx, "PAYROLL")
		require.NoError(t, err)
		assert.Equal(t, je.JobID(), restarted.JobID())
		assert.NotEqual(t, je.ID(), restarted.ID())
		assert.True(t, restarted.JobParameters().Equals(payrollParams()))

		batchtest.MarkExecutionAsCompleted(restarted)
		require.NoError(t, repo.UpdateJobExecution(ctx, restarted))
		_, err = operator.Restart(ctx, "PAYROLL")
		assert.ErrorIs(t, err, exception.ErrJobRestart, "a completed execution is not restartable")
	})
}

func TestDefaultJobOperator_StartNextInstance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		operator, repo, explorer := newOperator(daos)
		inc := incrementer.NewRunIDIncrementer("")

		first, err := operator.StartNextInstance(ctx, "PAYROLL", inc)
		require.NoError(t, err)
		assert.Equal(t, int64(1), first.JobParameters().GetLong("run.id"))
		batchtest.MarkExecutionAsCompleted(first)
		require.NoError(t, repo.UpdateJobExecution(ctx, first))

		second, err := operator.StartNextInstance(ctx, "PAYROLL", inc)
		require.NoError(t, err)
		assert.Equal(t, int64(2), second.JobParameters().GetLong("run.id"))
		assert.NotEqual(t, first.JobID(), second.JobID())

		count, err := explorer.GetJobInstanceCount(ctx, "PAYROLL")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		_, err = operator.StartNextInstance(ctx, "PAYROLL", nil)
		assert.True(t, exception.IsIllegalArgument(err))
	})
}
