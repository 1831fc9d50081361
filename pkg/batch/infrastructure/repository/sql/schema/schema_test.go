package schema

import (
	"context"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func TestDialects(t *testing.T) {
	assert.Equal(t, []string{"mysql", "postgres", "sqlite"}, Dialects())
}

func TestRender_SubstitutesPrefix(t *testing.T) {
	rendered, err := Render("postgres", "PAYROLL_")
	require.NoError(t, err)

	names, err := fs.Glob(rendered, "*.sql")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"000001_create_batch_tables.up.sql", "000001_create_batch_tables.down.sql"}, names)

	up, err := fs.ReadFile(rendered, "000001_create_batch_tables.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS PAYROLL_JOB_INSTANCE")
	assert.Contains(t, string(up), "CREATE SEQUENCE IF NOT EXISTS PAYROLL_JOB_SEQ")
	assert.NotContains(t, string(up), "%PREFIX%")
}

func TestRender_UnknownDialect(t *testing.T) {
	_, err := Render("oracle", "BATCH_")
	assert.Error(t, err)
}

func TestStatements(t *testing.T) {
	for _, dialect := range Dialects() {
		t.Run(dialect, func(t *testing.T) {
			up, err := Statements(dialect, "BATCH_", Up)
			require.NoError(t, err)
			require.NotEmpty(t, up)
			assert.True(t, strings.HasPrefix(up[0], "CREATE TABLE IF NOT EXISTS BATCH_JOB_INSTANCE"), up[0])
			for _, stmt := range up {
				assert.NotContains(t, stmt, ";")
			}

			down, err := Statements(dialect, "BATCH_", Down)
			require.NoError(t, err)
			assert.Len(t, down, 9)
			assert.Contains(t, down[0], "STEP_EXECUTION_CONTEXT")
		})
	}
}

func tableCount(t *testing.T, exec database.QueryExecutor) int64 {
	t.Helper()
	n, _, err := database.QueryForInt64(context.Background(), exec,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'BATCH_%'", nil)
	require.NoError(t, err)
	return n
}

func TestInitializer_CreateIsIdempotentAndDropRemovesEverything(t *testing.T) {
	conn := batchtest.NewSQLiteConnection(t)
	ctx := context.Background()
	initializer := NewInitializer(conn, "BATCH_")

	require.NoError(t, initializer.Create(ctx))
	require.NoError(t, initializer.Create(ctx))
	assert.Equal(t, int64(9), tableCount(t, conn))

	seq, _, err := database.QueryForInt64(ctx, conn, "SELECT COUNT(*) FROM BATCH_JOB_SEQ", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq, "sequence tables are seeded once")

	require.NoError(t, initializer.Drop(ctx))
	assert.Zero(t, tableCount(t, conn))
}
