package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	"github.com/tigerroll/batchstate/pkg/batch/core/tx"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// NewGormLogger creates a gorm.Logger instance based on the configured log level.
func NewGormLogger(level string) gorm_logger.Interface {
	var gormLevel gorm_logger.LogLevel
	switch config.LogLevel(strings.ToUpper(level)) {
	case config.LogLevelError:
		gormLevel = gorm_logger.Error
	case config.LogLevelWarn:
		gormLevel = gorm_logger.Warn
	case config.LogLevelInfo, config.LogLevelDebug:
		gormLevel = gorm_logger.Info
	default:
		gormLevel = gorm_logger.Silent
	}

	return gorm_logger.New(
		NewGormWriter(),
		gorm_logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// GormWriter redirects GORM log output to the batch logger.
type GormWriter struct{}

// NewGormWriter creates a new instance of GormWriter.
func NewGormWriter() *GormWriter {
	return &GormWriter{}
}

// Printf implements gorm_logger.Writer.
// Statement traces go to DEBUG, everything else (slow queries, connection notices) to INFO.
func (w *GormWriter) Printf(format string, v ...interface{}) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	if isStatementTrace(msg) {
		logger.Debugf("[GORM] %s", msg)
	} else {
		logger.Infof("[GORM] %s", msg)
	}
}

func isStatementTrace(msg string) bool {
	if !strings.Contains(msg, "[") || !strings.Contains(msg, "]") {
		return false
	}
	for _, verb := range []string{"SELECT", "INSERT", "UPDATE", "DELETE"} {
		if strings.Contains(msg, verb) {
			return true
		}
	}
	return false
}

// GormDBAdapter implements database.DBConnection on top of *gorm.DB.
type GormDBAdapter struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	cfg    dbconfig.DatabaseConfig
	dbType string
	name   string
}

// NewGormDBAdapter wraps an open *gorm.DB. cfg.Type selects the dialect specific error handling.
func NewGormDBAdapter(db *gorm.DB, cfg dbconfig.DatabaseConfig, name string) (*GormDBAdapter, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying *sql.DB: %w", err)
	}
	return &GormDBAdapter{
		db:     db,
		sqlDB:  sqlDB,
		cfg:    cfg,
		dbType: cfg.Type,
		name:   name,
	}, nil
}

// GetGormDB returns the underlying *gorm.DB instance.
func (a *GormDBAdapter) GetGormDB() *gorm.DB {
	return a.db
}

// session returns the transaction carried by ctx, or the connection pool.
func (a *GormDBAdapter) session(ctx context.Context) *gorm.DB {
	if t, ok := tx.FromContext(ctx); ok {
		if gt, ok := t.(*GormTx); ok {
			return gt.db.WithContext(ctx)
		}
	}
	return a.db.WithContext(ctx)
}

func namedArgs(params map[string]interface{}) []interface{} {
	if len(params) == 0 {
		return nil
	}
	return []interface{}{params}
}

// Query implements database.QueryExecutor.
func (a *GormDBAdapter) Query(ctx context.Context, query string, params map[string]interface{}, fn func(row database.RowScanner) error) error {
	rows, err := a.session(ctx).Raw(query, namedArgs(params)...).Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Update implements database.QueryExecutor.
func (a *GormDBAdapter) Update(ctx context.Context, query string, params map[string]interface{}) (int64, error) {
	result := a.session(ctx).Exec(query, namedArgs(params)...)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// BatchUpdate implements database.QueryExecutor.
func (a *GormDBAdapter) BatchUpdate(ctx context.Context, query string, batch []map[string]interface{}) ([]int64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	run := func(db *gorm.DB) ([]int64, error) {
		counts := make([]int64, 0, len(batch))
		for _, params := range batch {
			result := db.Exec(query, namedArgs(params)...)
			if result.Error != nil {
				return nil, result.Error
			}
			counts = append(counts, result.RowsAffected)
		}
		return counts, nil
	}

	if _, ok := tx.FromContext(ctx); ok {
		return run(a.session(ctx))
	}
	var counts []int64
	err := a.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		var err error
		counts, err = run(txDB)
		return err
	})
	return counts, err
}

// Dialect implements database.QueryExecutor.
func (a *GormDBAdapter) Dialect() string {
	return a.dbType
}

// IsUniqueViolation implements database.QueryExecutor.
func (a *GormDBAdapter) IsUniqueViolation(err error) bool {
	return IsUniqueViolation(err)
}

// IsTableNotExistError implements database.DBConnection.
func (a *GormDBAdapter) IsTableNotExistError(err error) bool {
	return IsTableNotExistError(err)
}

// Close implements database.DBConnection.
func (a *GormDBAdapter) Close() error {
	if a.sqlDB != nil {
		logger.Infof("Closing database connection '%s'...", a.name)
		return a.sqlDB.Close()
	}
	return nil
}

// Type implements database.DBConnection.
func (a *GormDBAdapter) Type() string {
	return a.dbType
}

// Name implements database.DBConnection.
func (a *GormDBAdapter) Name() string {
	return a.name
}

// RefreshConnection implements database.DBConnection.
func (a *GormDBAdapter) RefreshConnection(ctx context.Context) error {
	if a.sqlDB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	return a.sqlDB.PingContext(ctx)
}

// Config implements database.DBConnection.
func (a *GormDBAdapter) Config() dbconfig.DatabaseConfig {
	return a.cfg
}

// GetSQLDB implements database.DBConnection.
func (a *GormDBAdapter) GetSQLDB() (*sql.DB, error) {
	if a.sqlDB == nil {
		return nil, fmt.Errorf("underlying sql.DB is nil")
	}
	return a.sqlDB, nil
}

var _ database.DBConnection = (*GormDBAdapter)(nil)
