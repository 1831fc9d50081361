// Package incrementer hands out primary keys for the relational job repository.
package incrementer

import (
	"context"
	"fmt"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
)

// DataFieldMaxValueIncrementer returns the next value of a key sequence.
type DataFieldMaxValueIncrementer interface {
	NextLong(ctx context.Context) (int64, error)
}

// TableIncrementer emulates a sequence with a single row table holding the last issued value.
// The row is bumped and read back with the caller's context, so inside a transaction both
// statements share it and the row lock serializes concurrent callers.
type TableIncrementer struct {
	exec      database.QueryExecutor
	tableName string
}

// NewTableIncrementer creates an incrementer over tableName, which must hold exactly one row with an ID column.
func NewTableIncrementer(exec database.QueryExecutor, tableName string) *TableIncrementer {
	return &TableIncrementer{exec: exec, tableName: tableName}
}

// NextLong implements DataFieldMaxValueIncrementer.
func (i *TableIncrementer) NextLong(ctx context.Context) (int64, error) {
	n, err := i.exec.Update(ctx, "UPDATE "+i.tableName+" SET ID = ID + 1", nil)
	if err != nil {
		return 0, fmt.Errorf("could not increment %s: %w", i.tableName, err)
	}
	if n != 1 {
		return 0, fmt.Errorf("sequence table %s must contain exactly one row, found %d", i.tableName, n)
	}
	id, found, err := database.QueryForInt64(ctx, i.exec, "SELECT ID FROM "+i.tableName, nil)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", i.tableName, err)
	}
	if !found {
		return 0, fmt.Errorf("sequence table %s is empty", i.tableName)
	}
	return id, nil
}

// SequenceIncrementer reads a native database sequence (PostgreSQL).
type SequenceIncrementer struct {
	exec         database.QueryExecutor
	sequenceName string
}

// NewSequenceIncrementer creates an incrementer over a native sequence.
func NewSequenceIncrementer(exec database.QueryExecutor, sequenceName string) *SequenceIncrementer {
	return &SequenceIncrementer{exec: exec, sequenceName: sequenceName}
}

// NextLong implements DataFieldMaxValueIncrementer.
func (i *SequenceIncrementer) NextLong(ctx context.Context) (int64, error) {
	id, found, err := database.QueryForInt64(ctx, i.exec, "SELECT nextval('"+i.sequenceName+"')", nil)
	if err != nil {
		return 0, fmt.Errorf("could not read sequence %s: %w", i.sequenceName, err)
	}
	if !found {
		return 0, fmt.Errorf("sequence %s returned no value", i.sequenceName)
	}
	return id, nil
}

// New picks the incrementer matching the dialect of exec.
func New(exec database.QueryExecutor, name string) DataFieldMaxValueIncrementer {
	if exec.Dialect() == "postgres" {
		return NewSequenceIncrementer(exec, name)
	}
	return NewTableIncrementer(exec, name)
}
