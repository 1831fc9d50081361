package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func TestSimpleJobExplorer_HydratesExecutions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		ctx := context.Background()
		repo := NewSimpleJobRepository(daos, nil, nil)
		explorer := NewSimpleJobExplorer(daos)

		je, err := repo.CreateJobExecution(ctx, "PAYROLL", payrollParams(), "")
		require.NoError(t, err)
		je.ExecutionContext().Put("file", "payroll.csv")
		require.NoError(t, repo.UpdateJobExecutionContext(ctx, je))
		se := batchtest.NewTestStepExecution(je, "load")
		se.ExecutionContext().Put("line", 12)
		require.NoError(t, repo.AddStepExecution(ctx, se))

		loaded, err := explorer.GetJobExecution(ctx, je.ID())
		require.NoError(t, err)
		require.NotNil(t, loaded.JobInstance())
		assert.Equal(t, "PAYROLL", loaded.JobInstance().JobName())
		file, _ := loaded.ExecutionContext().GetString("file")
		assert.Equal(t, "payroll.csv", file)
		require.Len(t, loaded.StepExecutions(), 1)
		line, _ := loaded.StepExecutions()[0].ExecutionContext().GetInt("line")
		assert.Equal(t, 12, line)

		step, err := explorer.GetStepExecution(ctx, je.ID(), se.ID())
		require.NoError(t, err)
		assert.Equal(t, "load", step.StepName())
		_, err = explorer.GetStepExecution(ctx, je.ID(), se.ID()+100)
		assert.ErrorIs(t, err, repository.ErrStepExecutionNotFound)

		running, err := explorer.FindRunningJobExecutions(ctx, "PAYROLL")
		require.NoError(t, err)
		require.Len(t, running, 1)
		assert.Len(t, running[0].StepExecutions(), 1)

		instances, err := explorer.GetJobInstances(ctx, "PAYROLL", 0, 10)
		require.NoError(t, err)
		require.Len(t, instances, 1)
		executions, err := explorer.GetJobExecutions(ctx, instances[0])
		require.NoError(t, err)
		assert.Len(t, executions, 1)

		byID, err := explorer.GetJobInstance(ctx, instances[0].ID())
		require.NoError(t, err)
		assert.True(t, byID.Equals(instances[0]))

		names, err := explorer.GetJobNames(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"PAYROLL"}, names)
	})
}

func TestSimpleJobExplorer_UnknownExecution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, daos repository.Daos) {
		_, err := NewSimpleJobExplorer(daos).GetJobExecution(context.Background(), 404)
		assert.ErrorIs(t, err, repository.ErrJobExecutionNotFound)
	})
}
