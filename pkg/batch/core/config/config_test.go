package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, RepositoryTypeMemory, cfg.Batch.Repository.Type)
	assert.Equal(t, "BATCH_", cfg.Batch.Repository.TablePrefix)
	assert.Equal(t, 2500, cfg.Batch.Repository.MaxExitMessageLength)
	assert.Equal(t, "READ_COMMITTED", cfg.Batch.Repository.IsolationLevel)
	assert.Equal(t, "metadata", cfg.Batch.Repository.DatabaseRef)
	assert.Equal(t, "INFO", cfg.Batch.System.Logging.Level)
	assert.NotEmpty(t, cfg.Batch.Security.MaskedParameterKeys)
	assert.NoError(t, cfg.Validate())
}

const sampleYAML = `
batch:
  repository:
    type: sql
    table_prefix: ${TEST_BATCH_PREFIX:JOBS_}
    max_exit_message_length: 100
  database:
    metadata:
      type: sqlite
      database: ${TEST_BATCH_DB}
  system:
    logging:
      level: DEBUG
`

func TestLoadConfig_YAMLOverDefaults(t *testing.T) {
	t.Setenv("TEST_BATCH_DB", "file:test.db")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	repo := cfg.Batch.Repository
	assert.Equal(t, RepositoryTypeSQL, repo.Type)
	assert.Equal(t, "JOBS_", repo.TablePrefix, "default of the placeholder applies")
	assert.Equal(t, 100, repo.MaxExitMessageLength)
	assert.Equal(t, "READ_COMMITTED", repo.IsolationLevel, "keys missing from the document keep their default")
	assert.Equal(t, "DEBUG", cfg.Batch.System.Logging.Level)

	metadata, ok := cfg.Batch.Database["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "file:test.db", metadata["database"])
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("TEST_BATCH_DB", "file:test.db")
	t.Setenv("BATCH_REPOSITORY_TABLE_PREFIX", "ENV_")
	t.Setenv("BATCH_REPOSITORY_MAX_EXIT_MESSAGE_LENGTH", "42")
	t.Setenv("BATCH_SECURITY_MASKED_PARAMETER_KEYS", "token, apikey")
	t.Setenv("BATCH_DATABASE_METADATA_HOST", "db.internal")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "ENV_", cfg.Batch.Repository.TablePrefix)
	assert.Equal(t, 42, cfg.Batch.Repository.MaxExitMessageLength)
	assert.Equal(t, []string{"token", "apikey"}, cfg.Batch.Security.MaskedParameterKeys)

	metadata := cfg.Batch.Database["metadata"].(map[string]interface{})
	assert.Equal(t, "db.internal", metadata["host"])
	assert.Equal(t, "sqlite", metadata["type"], "other keys of the entry survive")
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_BATCH_ENVFILE_PREFIX=DOTENV_\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_BATCH_ENVFILE_PREFIX") })

	cfg, err := LoadConfig(envFile, EmbeddedConfig("batch:\n  repository:\n    table_prefix: ${TEST_BATCH_ENVFILE_PREFIX}\n"))
	require.NoError(t, err)
	assert.Equal(t, "DOTENV_", cfg.Batch.Repository.TablePrefix)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.yaml")
	require.NoError(t, os.WriteFile(path, []byte("batch:\n  metrics:\n    enabled: true\n"), 0o600))

	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.env"), path)
	require.NoError(t, err)
	assert.True(t, cfg.Batch.Metrics.Enabled)
	assert.Equal(t, "batch", cfg.Batch.Metrics.Namespace)

	_, err = LoadConfigFile("", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), EmbeddedConfig("batch: [unclosed"))
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty prefix", func(c *Config) { c.Batch.Repository.TablePrefix = " " }, false},
		{"zero message length", func(c *Config) { c.Batch.Repository.MaxExitMessageLength = 0 }, false},
		{"unknown type", func(c *Config) { c.Batch.Repository.Type = "redis" }, false},
		{"unknown isolation", func(c *Config) { c.Batch.Repository.IsolationLevel = "SNAPSHOT" }, false},
		{"lower case isolation", func(c *Config) { c.Batch.Repository.IsolationLevel = "serializable" }, true},
		{"sql without database", func(c *Config) { c.Batch.Repository.Type = RepositoryTypeSQL }, false},
		{"sql with database", func(c *Config) {
			c.Batch.Repository.Type = RepositoryTypeSQL
			c.Batch.Database["metadata"] = map[string]interface{}{"type": "sqlite"}
		}, true},
		{"unknown exporter", func(c *Config) { c.Batch.Tracing.Exporter = "zipkin" }, false},
		{"otlp grpc tracing", func(c *Config) { c.Batch.Tracing.Exporter = ExporterOTLPGRPC }, true},
		{"otlp metrics", func(c *Config) { c.Batch.Metrics.Exporter = ExporterOTLP }, true},
		{"unknown metrics exporter", func(c *Config) { c.Batch.Metrics.Exporter = "statsd" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := NewConfig()
	cfg.Batch.Repository.TablePrefix = ""
	cfg.Batch.Repository.MaxExitMessageLength = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table_prefix")
	assert.Contains(t, err.Error(), "max_exit_message_length")
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("TEST_EXPANDER_SET", "value")
	t.Setenv("TEST_EXPANDER_EMPTY", "")

	out, err := NewOsEnvironmentExpander().Expand([]byte("a=${TEST_EXPANDER_SET} b=${TEST_EXPANDER_UNSET:fallback} c=${TEST_EXPANDER_EMPTY:dflt} d=${TEST_EXPANDER_UNSET}"))
	require.NoError(t, err)
	assert.Equal(t, "a=value b=fallback c=dflt d=", string(out))
}
