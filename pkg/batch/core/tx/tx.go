// Package tx provides the transaction abstraction used by the relational job repository.
// Repository operations that touch several rows run through a TransactionTemplate so that
// they either fully apply or leave no trace.
package tx

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Tx represents an ongoing database transaction.
type Tx interface {
	// Savepoint creates a new savepoint within the current transaction.
	Savepoint(name string) error
	// RollbackToSavepoint rolls back the transaction to the savepoint with the specified name.
	RollbackToSavepoint(name string) error
}

// TransactionManager manages the lifecycle of database transactions.
type TransactionManager interface {
	// Begin starts a new database transaction.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits the specified transaction.
	Commit(tx Tx) error
	// Rollback rolls back the specified transaction.
	Rollback(tx Tx) error
}

type txContextKey struct{}

// WithTx returns a copy of ctx carrying tx. Executors look the transaction up from the context
// so that every statement issued on behalf of one repository call shares it.
func WithTx(ctx context.Context, tx Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// FromContext returns the transaction carried by ctx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txContextKey{}).(Tx)
	return tx, ok && tx != nil
}

// ParseIsolationLevel maps a configured name such as READ_COMMITTED to sql.IsolationLevel.
func ParseIsolationLevel(name string) (sql.IsolationLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "DEFAULT":
		return sql.LevelDefault, nil
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted, nil
	case "READ_COMMITTED":
		return sql.LevelReadCommitted, nil
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead, nil
	case "SERIALIZABLE":
		return sql.LevelSerializable, nil
	default:
		return sql.LevelDefault, fmt.Errorf("unknown isolation level: %s", name)
	}
}

// TransactionTemplate runs callbacks inside a transaction.
// A callback issued while ctx already carries a transaction joins it instead of starting a new one.
type TransactionTemplate struct {
	manager TransactionManager
	options *sql.TxOptions
}

// NewTransactionTemplate creates a template. opts may be nil for driver defaults.
func NewTransactionTemplate(manager TransactionManager, opts *sql.TxOptions) *TransactionTemplate {
	return &TransactionTemplate{manager: manager, options: opts}
}

// Execute runs fn in a transaction and commits when fn returns nil. Any error or panic rolls back.
func (t *TransactionTemplate) Execute(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := FromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.manager.Begin(ctx, t.options)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = t.manager.Rollback(tx)
			panic(r)
		}
	}()

	if err = fn(WithTx(ctx, tx)); err != nil {
		if rbErr := t.manager.Rollback(tx); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return t.manager.Commit(tx)
}
