package gorm

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/batchstate/pkg/batch/adapter/database/config"
	"github.com/tigerroll/batchstate/pkg/batch/core/tx"
)

func newSQLiteAdapter(t *testing.T) *GormDBAdapter {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: NewGormLogger("SILENT"), SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("CREATE TABLE ITEMS (ID BIGINT PRIMARY KEY, NAME VARCHAR(20) NOT NULL, QTY INT)").Error)

	a, err := NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "sqlite"}, "test")
	require.NoError(t, err)
	return a
}

func countItems(t *testing.T, a *GormDBAdapter) int64 {
	t.Helper()
	n, _, err := database.QueryForInt64(context.Background(), a, "SELECT COUNT(*) FROM ITEMS", nil)
	require.NoError(t, err)
	return n
}

func TestGormDBAdapter_NamedParameters(t *testing.T) {
	a := newSQLiteAdapter(t)
	ctx := context.Background()

	n, err := a.Update(ctx, "INSERT INTO ITEMS (ID, NAME, QTY) VALUES (@id, @name, @qty)", map[string]interface{}{"id": 1, "name": "apple", "qty": nil})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := a.BatchUpdate(ctx, "INSERT INTO ITEMS (ID, NAME, QTY) VALUES (@id, @name, @qty)", []map[string]interface{}{
		{"id": 2, "name": "pear", "qty": 3},
		{"id": 3, "name": "plum", "qty": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1}, counts)

	names, err := database.QueryForStrings(ctx, a, "SELECT NAME FROM ITEMS WHERE ID >= @min ORDER BY ID", map[string]interface{}{"min": 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"pear", "plum"}, names)

	qty, found, err := database.QueryForInt64(ctx, a, "SELECT QTY FROM ITEMS WHERE ID = @id", map[string]interface{}{"id": 1})
	require.NoError(t, err)
	assert.False(t, found, "NULL reads as not found")
	assert.Zero(t, qty)

	_, found, err = database.QueryForObject(ctx, a, "SELECT NAME FROM ITEMS WHERE ID = @id", map[string]interface{}{"id": 99},
		func(row database.RowScanner) (string, error) {
			var s string
			return s, row.Scan(&s)
		})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGormDBAdapter_BatchUpdateIsAtomic(t *testing.T) {
	a := newSQLiteAdapter(t)

	_, err := a.BatchUpdate(context.Background(), "INSERT INTO ITEMS (ID, NAME) VALUES (@id, @name)", []map[string]interface{}{
		{"id": 1, "name": "a"},
		{"id": 1, "name": "duplicate"},
	})
	require.Error(t, err)
	assert.True(t, a.IsUniqueViolation(err))
	assert.Zero(t, countItems(t, a))
}

func TestGormDBAdapter_TransactionTemplate(t *testing.T) {
	a := newSQLiteAdapter(t)
	template := tx.NewTransactionTemplate(NewGormTransactionManager(a), nil)
	ctx := context.Background()

	err := template.Execute(ctx, func(ctx context.Context) error {
		if _, err := a.Update(ctx, "INSERT INTO ITEMS (ID, NAME) VALUES (@id, @name)", map[string]interface{}{"id": 1, "name": "a"}); err != nil {
			return err
		}
		// A nested template joins the outer transaction instead of waiting for a second connection.
		return template.Execute(ctx, func(ctx context.Context) error {
			_, err := a.Update(ctx, "INSERT INTO ITEMS (ID, NAME) VALUES (@id, @name)", map[string]interface{}{"id": 2, "name": "b"})
			return err
		})
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), countItems(t, a))

	boom := errors.New("boom")
	err = template.Execute(ctx, func(ctx context.Context) error {
		if _, err := a.Update(ctx, "INSERT INTO ITEMS (ID, NAME) VALUES (@id, @name)", map[string]interface{}{"id": 3, "name": "c"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(2), countItems(t, a), "rolled back")
}

func TestGormDBAdapter_MySQLBinding(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{Logger: NewGormLogger("SILENT"), SkipDefaultTransaction: true})
	require.NoError(t, err)
	a, err := NewGormDBAdapter(db, dbconfig.DatabaseConfig{Type: "mysql"}, "mock")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE T SET A=? WHERE ID=? AND V=?")).
		WithArgs("x", 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := a.Update(context.Background(), "UPDATE T SET A=@a WHERE ID=@id AND V=@v", map[string]interface{}{"a": "x", "id": 7, "v": 2})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "mysql", a.Dialect())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.True(t, IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, IsUniqueViolation(&mysqldriver.MySQLError{Number: 1062}))
	assert.False(t, IsUniqueViolation(&mysqldriver.MySQLError{Number: 1146}))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func TestIsTableNotExistError(t *testing.T) {
	a := newSQLiteAdapter(t)
	_, err := a.Update(context.Background(), "DELETE FROM MISSING", nil)
	require.Error(t, err)
	assert.True(t, a.IsTableNotExistError(err))

	assert.True(t, IsTableNotExistError(&mysqldriver.MySQLError{Number: 1146}))
	assert.True(t, IsTableNotExistError(&pgconn.PgError{Code: "42P01"}))
	assert.False(t, IsTableNotExistError(nil))
}
