package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm"
)

func TestConnectionString(t *testing.T) {
	cfg := dbconfig.DatabaseConfig{
		Type:     "postgres",
		Host:     "pg_host",
		Port:     5432,
		Database: "pg_db",
		User:     "pg_user",
		Password: "pg_password",
		Sslmode:  "require",
	}
	assert.Equal(t, "host=pg_host port=5432 user=pg_user password=pg_password dbname=pg_db sslmode=require", ConnectionString(cfg))

	cfg.Sslmode = ""
	cfg.Schema = "batch"
	cfg.Params = map[string]string{"connect_timeout": "5", "application_name": "batchrepo"}
	assert.Equal(t,
		"host=pg_host port=5432 user=pg_user password=pg_password dbname=pg_db sslmode=disable search_path=batch application_name=batchrepo connect_timeout=5",
		ConnectionString(cfg))
}

func TestDialectorIsRegistered(t *testing.T) {
	factory, err := gormadapter.GetDialectorFactory("postgres")
	require.NoError(t, err)
	dialector, err := factory(dbconfig.DatabaseConfig{Host: "localhost", Port: 5432})
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialector.Name())
}
