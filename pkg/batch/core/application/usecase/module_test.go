package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/inmemory"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func TestModule_WiresRepositoryExplorerAndOperator(t *testing.T) {
	var (
		repo     repository.JobRepository
		explorer repository.JobExplorer
		operator JobOperator
	)

	app := fxtest.New(t,
		fx.Supply(&config.SecurityConfig{MaskedParameterKeys: []string{"password"}}),
		fx.Provide(inmemory.NewDaos),
		metrics.Module,
		Module,
		fx.Populate(&repo, &explorer, &operator),
	)
	app.RequireStart()
	defer app.RequireStop()

	ctx := context.Background()
	params := batchtest.NewTestJobParameters(map[string]interface{}{"run.id": 1})
	started, err := operator.Start(ctx, "PAYROLL", params)
	require.NoError(t, err)

	found, err := explorer.GetJobExecution(ctx, started.ID())
	require.NoError(t, err)
	assert.Equal(t, started.ID(), found.ID())

	exists, err := repo.IsJobInstanceExists(ctx, "PAYROLL", params)
	require.NoError(t, err)
	assert.True(t, exists)
}
