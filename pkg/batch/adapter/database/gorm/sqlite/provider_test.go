package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/batchstate/pkg/batch/core/config"
)

func TestConnectionString(t *testing.T) {
	assert.Equal(t, "batch.db", ConnectionString(dbconfig.DatabaseConfig{Database: "batch.db"}))
	assert.Equal(t, "file:batch.db?_busy_timeout=5000&_foreign_keys=on",
		ConnectionString(dbconfig.DatabaseConfig{Database: "file:batch.db", Params: map[string]string{"_foreign_keys": "on", "_busy_timeout": "5000"}}))
	assert.Equal(t, "file::memory:?cache=shared&_fk=1",
		ConnectionString(dbconfig.DatabaseConfig{Database: "file::memory:?cache=shared", Params: map[string]string{"_fk": "1"}}))
}

func TestDialectorRequiresPath(t *testing.T) {
	factory, err := gormadapter.GetDialectorFactory("sqlite")
	require.NoError(t, err)
	_, err = factory(dbconfig.DatabaseConfig{})
	assert.Error(t, err)
}

func TestProvider_ConnectionLifecycle(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Batch.Database["metadata"] = map[string]interface{}{"type": "sqlite", "database": ":memory:"}
	cfg.Batch.Database["other"] = map[string]interface{}{"type": "mysql"}

	p := NewProvider(cfg)
	conn, err := p.GetConnection("metadata")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conn.Type())
	assert.Equal(t, "metadata", conn.Name())
	require.NoError(t, conn.RefreshConnection(context.Background()))

	again, err := p.GetConnection("metadata")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = p.GetConnection("other")
	assert.ErrorContains(t, err, "provider type mismatch")

	reconnected, err := p.ForceReconnect("metadata")
	require.NoError(t, err)
	assert.NotSame(t, conn, reconnected)

	assert.NoError(t, p.CloseAll())
}
