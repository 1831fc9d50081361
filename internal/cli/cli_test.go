package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

const sqliteConfig = `batch:
  repository:
    type: sql
    database_ref: metadata
  database:
    metadata:
      type: sqlite
      database: %s
  security:
    masked_parameter_keys: [password]
  system:
    logging:
      level: WARN
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := BuildCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_OperatorWorkflowOnSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "batch.db")
	configPath := writeConfig(t, fmt.Sprintf(sqliteConfig, dbPath))

	out, err := execute(t, configPath, "schema", "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 1")

	out, err = execute(t, configPath, "start", "payroll", "run.date(date)=2026/10/01", "-password=hunter2")
	require.NoError(t, err)
	assert.Contains(t, out, "payroll")
	assert.Contains(t, out, "STARTING")
	assert.Contains(t, out, "password=********")
	assert.NotContains(t, out, "hunter2")

	_, err = execute(t, configPath, "start", "payroll", "run.date(date)=2026/10/01")
	assert.ErrorIs(t, err, exception.ErrJobExecutionAlreadyRunning)

	out, err = execute(t, configPath, "running", "payroll")
	require.NoError(t, err)
	assert.Contains(t, out, "STARTING")

	out, err = execute(t, configPath, "stop", "payroll")
	require.NoError(t, err)
	assert.Contains(t, out, "STOPPING")

	_, err = execute(t, configPath, "abandon", "payroll")
	assert.ErrorIs(t, err, exception.ErrJobExecutionNotStopped)

	out, err = execute(t, configPath, "jobs")
	require.NoError(t, err)
	assert.Regexp(t, `payroll\s+1`, out)

	out, err = execute(t, configPath, "instances", "payroll")
	require.NoError(t, err)
	assert.Regexp(t, `\s1\s+STOPPING`, out)

	out, err = execute(t, configPath, "schema", "drop")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 0")
}

func TestCLI_StartNextInstanceIncrementsRunID(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "batch.db")
	configPath := writeConfig(t, fmt.Sprintf(sqliteConfig, dbPath))

	_, err := execute(t, configPath, "schema", "migrate")
	require.NoError(t, err)

	out, err := execute(t, configPath, "start", "--next", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "run.id=1")

	out, err = execute(t, configPath, "start", "--next", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "run.id=2")
}

func TestCLI_SchemaRequiresSQLRepository(t *testing.T) {
	configPath := writeConfig(t, "batch:\n  repository:\n    type: memory\n")
	_, err := execute(t, configPath, "schema", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema commands require")
}

func TestCLI_UnknownExecution(t *testing.T) {
	configPath := writeConfig(t, "batch:\n  repository:\n    type: memory\n")
	_, err := execute(t, configPath, "execution", "42")
	require.Error(t, err)

	_, err = execute(t, configPath, "execution", "forty-two")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution id")
}

func TestCLI_InvalidParameter(t *testing.T) {
	configPath := writeConfig(t, "batch:\n  repository:\n    type: memory\n")
	_, err := execute(t, configPath, "start", "payroll", "no-equals-sign")
	require.Error(t, err)
}
