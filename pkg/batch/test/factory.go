package test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/batchstate/pkg/batch/adapter/database/gorm"
	tx "github.com/tigerroll/batchstate/pkg/batch/core/tx"
)

// NewSQLiteConnection opens a private in-memory SQLite database wrapped as a DBConnection.
// The pool holds a single connection so every statement sees the same database.
// The connection is closed when the test ends.
func NewSQLiteConnection(t *testing.T) *gormadapter.GormDBAdapter {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormadapter.NewGormLogger("SILENT"),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gormadapter.NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "metadata")
	require.NoError(t, err)
	return conn
}

// NewSQLiteTransactionManager returns a transaction manager over conn.
func NewSQLiteTransactionManager(conn *gormadapter.GormDBAdapter) tx.TransactionManager {
	return gormadapter.NewGormTransactionManager(conn)
}
