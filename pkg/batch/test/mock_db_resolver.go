package test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	tx "github.com/tigerroll/batchstate/pkg/batch/core/tx"
)

// MockDBConnectionResolver is a testify mock of database.DBConnectionResolver.
type MockDBConnectionResolver struct {
	mock.Mock
}

// ResolveDBConnection implements database.DBConnectionResolver.
func (m *MockDBConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.DBConnection), args.Error(1)
}

// testSingleConnectionResolver returns the same connection for every name.
type testSingleConnectionResolver struct {
	conn database.DBConnection
}

func (r *testSingleConnectionResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

// NewTestSingleConnectionResolver creates a resolver that always returns conn.
func NewTestSingleConnectionResolver(conn database.DBConnection) database.DBConnectionResolver {
	return &testSingleConnectionResolver{conn: conn}
}

// testTransactionManagerFactory hands out a fixed transaction manager.
type testTransactionManagerFactory struct {
	manager tx.TransactionManager
}

func (f *testTransactionManagerFactory) NewTransactionManager(database.DBConnection) (tx.TransactionManager, error) {
	return f.manager, nil
}

// NewTestTransactionManagerFactory creates a factory that always returns manager.
func NewTestTransactionManagerFactory(manager tx.TransactionManager) database.TransactionManagerFactory {
	return &testTransactionManagerFactory{manager: manager}
}

var (
	_ database.DBConnectionResolver      = (*MockDBConnectionResolver)(nil)
	_ database.DBConnectionResolver      = (*testSingleConnectionResolver)(nil)
	_ database.TransactionManagerFactory = (*testTransactionManagerFactory)(nil)
)
