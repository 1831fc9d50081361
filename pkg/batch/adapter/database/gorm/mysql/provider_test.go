package mysql

import (
	"testing"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/batchstate/pkg/batch/core/config"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(dbconfig.DatabaseConfig{
		Type:     "mysql",
		Host:     "mysql_host",
		Port:     3306,
		Database: "batch",
		User:     "batch_user",
		Password: "p@ss",
		Params:   map[string]string{"sql_mode": "ANSI"},
	})

	parsed, err := mysqldriver.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "batch_user", parsed.User)
	assert.Equal(t, "p@ss", parsed.Passwd)
	assert.Equal(t, "mysql_host:3306", parsed.Addr)
	assert.Equal(t, "batch", parsed.DBName)
	assert.True(t, parsed.ParseTime)
	assert.True(t, parsed.MultiStatements)
	assert.Equal(t, "ANSI", parsed.Params["sql_mode"])
	assert.Contains(t, dsn, "charset=utf8mb4")
}

func TestDialectorIsRegistered(t *testing.T) {
	factory, err := gormadapter.GetDialectorFactory("mysql")
	require.NoError(t, err)
	dialector, err := factory(dbconfig.DatabaseConfig{Host: "localhost", Port: 3306})
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialector.Name())
}

func TestNewProvider(t *testing.T) {
	p := NewProvider(config.NewConfig())
	assert.Equal(t, "mysql", p.Type())

	_, err := p.GetConnection("missing")
	assert.Error(t, err)
}
