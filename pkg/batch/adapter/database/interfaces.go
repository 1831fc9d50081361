// Package database defines the connection and query abstractions the relational job repository
// is written against. Concrete implementations live in the gorm subpackage.
package database

import (
	"context"
	"database/sql"

	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	"github.com/tigerroll/batchstate/pkg/batch/core/tx"
)

// RowScanner is the subset of *sql.Rows a row mapper needs.
type RowScanner interface {
	Scan(dest ...interface{}) error
}

// QueryExecutor runs SQL with named parameters written as @name.
// Statements issued with a context carrying a transaction (see core/tx) run inside it.
type QueryExecutor interface {
	// Query executes a SELECT and calls fn once per row, in result order.
	Query(ctx context.Context, query string, params map[string]interface{}, fn func(row RowScanner) error) error

	// Update executes an INSERT, UPDATE or DELETE and returns the number of affected rows.
	Update(ctx context.Context, query string, params map[string]interface{}) (rowsAffected int64, err error)

	// BatchUpdate executes query once per parameter set, all in one transaction.
	// The affected row counts are returned in input order.
	BatchUpdate(ctx context.Context, query string, batch []map[string]interface{}) ([]int64, error)

	// Dialect returns the database type ("sqlite", "mysql", "postgres").
	Dialect() string

	// IsUniqueViolation reports whether err was raised by a unique or primary key constraint.
	IsUniqueViolation(err error) bool
}

// DBConnection represents an open, named database connection.
type DBConnection interface {
	QueryExecutor

	// Close closes the connection pool.
	Close() error
	// Type returns the database type (e.g., "mysql").
	Type() string
	// Name returns the connection name (e.g., "metadata").
	Name() string
	// IsTableNotExistError checks if the given error indicates that a table does not exist.
	IsTableNotExistError(err error) bool
	// RefreshConnection pings the connection pool.
	RefreshConnection(ctx context.Context) error
	// Config returns the database configuration associated with this connection.
	Config() dbconfig.DatabaseConfig
	// GetSQLDB returns the underlying *sql.DB connection.
	GetSQLDB() (*sql.DB, error)
}

// DBConnectionResolver resolves a named connection, re-establishing it when it went stale.
type DBConnectionResolver interface {
	ResolveDBConnection(ctx context.Context, name string) (DBConnection, error)
}

// DBProvider opens and caches connections of one database type.
type DBProvider interface {
	// GetConnection retrieves a database connection with the specified name.
	GetConnection(name string) (DBConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the database type handled by this provider.
	Type() string
	// ForceReconnect closes and re-opens the connection with the specified name.
	ForceReconnect(name string) (DBConnection, error)
}

// TransactionManagerFactory creates the transaction manager bound to a connection.
type TransactionManagerFactory interface {
	NewTransactionManager(conn DBConnection) (tx.TransactionManager, error)
}

// DBProviderGroup is the Fx value group all DBProvider implementations are provided into.
const DBProviderGroup = "db_providers"
