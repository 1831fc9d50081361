package incrementer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
)

type mockExecutor struct {
	mock.Mock
	dialect string
}

type valueRow struct{ v int64 }

func (r valueRow) Scan(dest ...interface{}) error {
	p := dest[0].(**int64)
	v := r.v
	*p = &v
	return nil
}

func (m *mockExecutor) Query(ctx context.Context, query string, params map[string]interface{}, fn func(row database.RowScanner) error) error {
	args := m.Called(query)
	if err := args.Error(1); err != nil {
		return err
	}
	for _, v := range args.Get(0).([]int64) {
		if err := fn(valueRow{v}); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockExecutor) Update(ctx context.Context, query string, params map[string]interface{}) (int64, error) {
	args := m.Called(query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockExecutor) BatchUpdate(context.Context, string, []map[string]interface{}) ([]int64, error) {
	return nil, errors.New("unused")
}

func (m *mockExecutor) Dialect() string               { return m.dialect }
func (m *mockExecutor) IsUniqueViolation(error) bool { return false }

func TestTableIncrementer(t *testing.T) {
	exec := &mockExecutor{dialect: "mysql"}
	exec.On("Update", "UPDATE BATCH_JOB_SEQ SET ID = ID + 1").Return(int64(1), nil)
	exec.On("Query", "SELECT ID FROM BATCH_JOB_SEQ").Return([]int64{42}, nil)

	inc := New(exec, "BATCH_JOB_SEQ")
	require.IsType(t, &TableIncrementer{}, inc)

	id, err := inc.NextLong(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	exec.AssertExpectations(t)
}

func TestTableIncrementer_RequiresSingleRow(t *testing.T) {
	exec := &mockExecutor{dialect: "sqlite"}
	exec.On("Update", mock.Anything).Return(int64(0), nil)

	_, err := NewTableIncrementer(exec, "BATCH_JOB_SEQ").NextLong(context.Background())
	assert.ErrorContains(t, err, "exactly one row")
}

func TestSequenceIncrementer(t *testing.T) {
	exec := &mockExecutor{dialect: "postgres"}
	exec.On("Query", "SELECT nextval('BATCH_JOB_SEQ')").Return([]int64{7}, nil)

	inc := New(exec, "BATCH_JOB_SEQ")
	require.IsType(t, &SequenceIncrementer{}, inc)

	id, err := inc.NextLong(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestSequenceIncrementer_Failure(t *testing.T) {
	exec := &mockExecutor{dialect: "postgres"}
	exec.On("Query", mock.Anything).Return([]int64(nil), errors.New("relation does not exist"))

	_, err := NewSequenceIncrementer(exec, "BATCH_JOB_SEQ").NextLong(context.Background())
	assert.ErrorContains(t, err, "relation does not exist")
}
