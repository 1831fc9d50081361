package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql/schema"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

var backends = map[string]func(t *testing.T) repository.Daos{
	"inmemory": func(t *testing.T) repository.Daos {
		return inmemory.NewDaos()
	},
	"sqlite": func(t *testing.T) repository.Daos {
		conn := batchtest.NewSQLiteConnection(t)
		require.NoError(t, schema.NewInitializer(conn, "BATCH_").Create(context.Background()))
		daos, err := sql.NewDaos(conn, batchtest.NewSQLiteTransactionManager(conn), sql.Options{}, nil)
		require.NoError(t, err)
		return daos
	},
}

// forEachBackend runs fn once per DAO backend.
func forEachBackend(t *testing.T, fn func(t *testing.T, daos repository.Daos)) {
	for name, newDaos := range backends {
		t.Run(name, func(t *testing.T) {
			fn(t, newDaos(t))
		})
	}
}
