// Package migration applies the job repository schema with golang-migrate, keeping a migration
// history table next to the metadata tables.
package migration

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	"github.com/tigerroll/batchstate/pkg/batch/infrastructure/repository/sql/schema"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// MigrationsTableSuffix is appended to the table prefix to name the migration history table.
const MigrationsTableSuffix = "SCHEMA_MIGRATIONS"

// Migrator runs the embedded schema scripts for one connection and table prefix.
// The underlying migrate instance owns the connection's *sql.DB once created, so Close closes both.
// On MySQL the connection must allow multiple statements per Exec (multiStatements=true).
type Migrator struct {
	conn     database.DBConnection
	prefix   string
	instance *migrate.Migrate
}

// NewMigrator creates a Migrator for the metadata tables named with prefix.
func NewMigrator(conn database.DBConnection, prefix string) *Migrator {
	return &Migrator{conn: conn, prefix: prefix}
}

// MigrationsTable returns the name of the migration history table.
func (m *Migrator) MigrationsTable() string {
	return m.prefix + MigrationsTableSuffix
}

// databaseDriver retrieves a migrate/v4 Driver based on the database type.
func (m *Migrator) databaseDriver(sqlDB *stdsql.DB) (migratedb.Driver, error) {
	switch m.conn.Type() {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: m.MigrationsTable()})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: m.MigrationsTable()})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: m.MigrationsTable()})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", m.conn.Type())
	}
}

func (m *Migrator) migrateInstance() (*migrate.Migrate, error) {
	if m.instance != nil {
		return m.instance, nil
	}

	scripts, err := schema.Render(m.conn.Type(), m.prefix)
	if err != nil {
		return nil, err
	}
	sourceDriver, err := iofs.New(scripts, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create iofs source driver: %w", err)
	}

	sqlDB, err := m.conn.GetSQLDB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	dbDriver, err := m.databaseDriver(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", sourceDriver, m.conn.Type(), dbDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.instance = instance
	return instance, nil
}

func (m *Migrator) run(ctx context.Context, command string, fn func(*migrate.Migrate) error) error {
	logger.Infof("Executing migration '%s' (Database: %s, Table: %s)", command, m.conn.Name(), m.MigrationsTable())
	if err := ctx.Err(); err != nil {
		return err
	}

	instance, err := m.migrateInstance()
	if err != nil {
		return err
	}

	if err := fn(instance); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Infof("Migration '%s': schema is already up to date.", command)
			return nil
		}
		return fmt.Errorf("migration failed for command '%s' (DB: %s): %w", command, m.conn.Type(), err)
	}

	logger.Infof("Migration '%s' completed successfully.", command)
	return nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	return m.run(ctx, "up", func(instance *migrate.Migrate) error { return instance.Up() })
}

// Down reverts all applied migrations, dropping the metadata tables.
func (m *Migrator) Down(ctx context.Context) error {
	return m.run(ctx, "down", func(instance *migrate.Migrate) error { return instance.Down() })
}

// Version returns the applied schema version and whether the last migration left the schema dirty.
// An untouched database reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	instance, err := m.migrateInstance()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := instance.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migrate instance together with the connection it was built on.
func (m *Migrator) Close() error {
	if m.instance == nil {
		return nil
	}
	sourceErr, dbErr := m.instance.Close()
	m.instance = nil
	return errors.Join(sourceErr, dbErr)
}
