package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql/schema"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func repositoryConfig(initialize bool) *config.RepositoryConfig {
	return &config.RepositoryConfig{
		Type:                 config.RepositoryTypeSQL,
		TablePrefix:          config.DefaultTablePrefix,
		MaxExitMessageLength: config.DefaultMaxExitMessageLength,
		IsolationLevel:       config.DefaultIsolationLevel,
		DatabaseRef:          config.DefaultDatabaseRef,
		InitializeSchema:     initialize,
	}
}

func TestDaoFactory_CreateInitializesSchema(t *testing.T) {
	ctx := context.Background()
	conn := batchtest.NewSQLiteConnection(t)
	factory := NewDaoFactory(DaoFactoryParams{
		Resolver:  batchtest.NewTestSingleConnectionResolver(conn),
		TxFactory: batchtest.NewTestTransactionManagerFactory(batchtest.NewSQLiteTransactionManager(conn)),
		Cfg:       repositoryConfig(true),
	})

	daos, err := factory.Create(ctx)
	require.NoError(t, err)

	ji, err := daos.JobInstanceDao.CreateJobInstance(ctx, "PAYROLL", batchtest.NewUniqueJobParameters())
	require.NoError(t, err)
	assert.True(t, ji.HasID())
}

func TestDaoFactory_ResolveFailure(t *testing.T) {
	resolver := &batchtest.MockDBConnectionResolver{}
	resolver.On("ResolveDBConnection", mock.Anything, "metadata").Return(nil, errors.New("connection refused"))

	factory := NewDaoFactory(DaoFactoryParams{
		Resolver:  resolver,
		TxFactory: batchtest.NewTestTransactionManagerFactory(&batchtest.MockTxManager{}),
		Cfg:       repositoryConfig(false),
	})

	_, err := factory.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'metadata'")
	assert.Contains(t, err.Error(), "connection refused")
	resolver.AssertExpectations(t)
}

func TestDaos_BeginFailureIsReported(t *testing.T) {
	conn := batchtest.NewSQLiteConnection(t)
	manager := &batchtest.MockTxManager{}
	manager.On("Begin", mock.Anything, mock.Anything).Return(nil, errors.New("pool exhausted"))

	daos, err := NewDaos(conn, manager, Options{}, nil)
	require.NoError(t, err)

	_, err = daos.JobInstanceDao.CreateJobInstance(context.Background(), "PAYROLL", batchtest.NewUniqueJobParameters())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool exhausted")
	manager.AssertExpectations(t)
}

func TestDaos_TransactionIsCommittedOrRolledBack(t *testing.T) {
	ctx := context.Background()
	conn := batchtest.NewSQLiteConnection(t)

	t.Run("rollback when a statement fails", func(t *testing.T) {
		transaction := &batchtest.MockTx{}
		manager := &batchtest.MockTxManager{}
		manager.On("Begin", mock.Anything, mock.Anything).Return(transaction, nil).Once()
		manager.On("Rollback", transaction).Return(nil).Once()

		daos, err := NewDaos(conn, manager, Options{}, nil)
		require.NoError(t, err)

		// The tables do not exist yet.
		_, err = daos.JobInstanceDao.CreateJobInstance(ctx, "PAYROLL", batchtest.NewUniqueJobParameters())
		require.Error(t, err)
		manager.AssertExpectations(t)
	})

	t.Run("commit when every statement succeeds", func(t *testing.T) {
		require.NoError(t, schema.NewInitializer(conn, config.DefaultTablePrefix).Create(ctx))

		transaction := &batchtest.MockTx{}
		manager := &batchtest.MockTxManager{}
		manager.On("Begin", mock.Anything, mock.Anything).Return(transaction, nil).Once()
		manager.On("Commit", transaction).Return(nil).Once()

		daos, err := NewDaos(conn, manager, Options{}, nil)
		require.NoError(t, err)

		_, err = daos.JobInstanceDao.CreateJobInstance(ctx, "PAYROLL", batchtest.NewUniqueJobParameters())
		require.NoError(t, err)
		manager.AssertExpectations(t)
		transaction.AssertNotCalled(t, "Savepoint", mock.Anything)
	})
}
