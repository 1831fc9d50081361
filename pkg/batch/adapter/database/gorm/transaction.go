package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	"github.com/tigerroll/batchstate/pkg/batch/core/tx"
)

// GormTx implements tx.Tx over a *gorm.DB opened with Begin.
type GormTx struct {
	db *gorm.DB
}

// Savepoint implements tx.Tx.
func (t *GormTx) Savepoint(name string) error {
	return t.db.SavePoint(name).Error
}

// RollbackToSavepoint implements tx.Tx.
func (t *GormTx) RollbackToSavepoint(name string) error {
	return t.db.RollbackTo(name).Error
}

// GormTransactionManager implements tx.TransactionManager for one connection.
type GormTransactionManager struct {
	conn *GormDBAdapter
}

// NewGormTransactionManager creates a transaction manager for conn.
func NewGormTransactionManager(conn *GormDBAdapter) *GormTransactionManager {
	return &GormTransactionManager{conn: conn}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}
	// SQLite transactions are always serializable.
	if txOpts != nil && m.conn.Dialect() == "sqlite" && txOpts.Isolation != sql.LevelDefault && txOpts.Isolation != sql.LevelSerializable {
		txOpts = &sql.TxOptions{ReadOnly: txOpts.ReadOnly}
	}

	gormTx := m.conn.GetGormDB().WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTx{db: gormTx}, nil
}

// Commit implements tx.TransactionManager.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTx, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return gormTx.db.Commit().Error
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTx, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	return gormTx.db.Rollback().Error
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// GormTransactionManagerFactory implements database.TransactionManagerFactory for connections
// opened by this package.
type GormTransactionManagerFactory struct{}

// NewGormTransactionManagerFactory creates a GormTransactionManagerFactory.
func NewGormTransactionManagerFactory() *GormTransactionManagerFactory {
	return &GormTransactionManagerFactory{}
}

// NewTransactionManager implements database.TransactionManagerFactory.
func (f *GormTransactionManagerFactory) NewTransactionManager(conn database.DBConnection) (tx.TransactionManager, error) {
	adapter, ok := conn.(*GormDBAdapter)
	if !ok {
		return nil, fmt.Errorf("connection '%s' is not a GORM connection (%T)", conn.Name(), conn)
	}
	return NewGormTransactionManager(adapter), nil
}

var _ database.TransactionManagerFactory = (*GormTransactionManagerFactory)(nil)
