package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Repository backends.
const (
	RepositoryTypeMemory = "memory"
	RepositoryTypeSQL    = "sql"
)

// Defaults applied by NewConfig.
const (
	DefaultTablePrefix          = "BATCH_"
	DefaultMaxExitMessageLength = 2500
	DefaultIsolationLevel       = "READ_COMMITTED"
	DefaultDatabaseRef          = "metadata"
	DefaultMetricsNamespace     = "batch"
)

// Telemetry exporters.
const (
	ExporterNone       = "none"
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterOTLPGRPC   = "otlp-grpc"
)

var isolationLevels = map[string]bool{
	"DEFAULT":          true,
	"READ_UNCOMMITTED": true,
	"READ_COMMITTED":   true,
	"REPEATABLE_READ":  true,
	"SERIALIZABLE":     true,
}

// Config is the root of the configuration tree.
type Config struct {
	Batch BatchConfig `yaml:"batch"`
}

// BatchConfig groups everything under the `batch:` key.
type BatchConfig struct {
	Repository RepositoryConfig `yaml:"repository"`
	// Database holds named connection settings. Each entry is decoded into an adapter specific
	// struct by configbinder, so the shape is left loose here.
	Database map[string]interface{} `yaml:"database"`
	System   SystemConfig           `yaml:"system"`
	Security SecurityConfig         `yaml:"security"`
	Metrics  MetricsConfig          `yaml:"metrics"`
	Tracing  TracingConfig          `yaml:"tracing"`
}

// RepositoryConfig selects and tunes the job repository backend.
type RepositoryConfig struct {
	// Type is "memory" or "sql".
	Type string `yaml:"type"`
	// TablePrefix is substituted for %PREFIX% in every relational query.
	TablePrefix string `yaml:"table_prefix"`
	// MaxExitMessageLength is the column width of EXIT_MESSAGE; longer descriptions are truncated.
	MaxExitMessageLength int `yaml:"max_exit_message_length"`
	// IsolationLevel applies to repository transactions (e.g. READ_COMMITTED, SERIALIZABLE).
	IsolationLevel string `yaml:"isolation_level"`
	// DatabaseRef names the entry of batch.database holding the metadata connection.
	DatabaseRef string `yaml:"database_ref"`
	// InitializeSchema creates the metadata tables on startup when they are missing.
	InitializeSchema bool `yaml:"initialize_schema"`
}

// SystemConfig holds process wide settings.
type SystemConfig struct {
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys is a list of keys in JobParameters whose values should be masked in logs.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// MetricsConfig controls the metric recorder.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	// Exporter is "prometheus" (pull), "otlp" (OTLP over HTTP) or "otlp-grpc".
	Exporter string `yaml:"exporter"`
	// Endpoint is the OTLP collector address; empty uses the exporter default.
	Endpoint string `yaml:"endpoint"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "none", "otlp" (OTLP over HTTP) or "otlp-grpc".
	Exporter    string `yaml:"exporter"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			Repository: RepositoryConfig{
				Type:                 RepositoryTypeMemory,
				TablePrefix:          DefaultTablePrefix,
				MaxExitMessageLength: DefaultMaxExitMessageLength,
				IsolationLevel:       DefaultIsolationLevel,
				DatabaseRef:          DefaultDatabaseRef,
			},
			Database: make(map[string]interface{}),
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: string(LogLevelInfo)},
			},
			Security: SecurityConfig{
				MaskedParameterKeys: []string{"password", "secret"},
			},
			Metrics: MetricsConfig{Namespace: DefaultMetricsNamespace, Exporter: ExporterPrometheus},
			Tracing: TracingConfig{Exporter: ExporterNone, ServiceName: "batchstate"},
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	repo := c.Batch.Repository

	switch repo.Type {
	case RepositoryTypeMemory:
	case RepositoryTypeSQL:
		if repo.DatabaseRef == "" {
			result = multierror.Append(result, fmt.Errorf("batch.repository.database_ref is required for the sql repository"))
		} else if _, ok := c.Batch.Database[repo.DatabaseRef]; !ok {
			result = multierror.Append(result, fmt.Errorf("batch.repository.database_ref '%s' does not name an entry of batch.database", repo.DatabaseRef))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown batch.repository.type '%s' (expected memory or sql)", repo.Type))
	}
	if strings.TrimSpace(repo.TablePrefix) == "" {
		result = multierror.Append(result, fmt.Errorf("batch.repository.table_prefix must not be empty"))
	}
	if repo.MaxExitMessageLength <= 0 {
		result = multierror.Append(result, fmt.Errorf("batch.repository.max_exit_message_length must be positive, got %d", repo.MaxExitMessageLength))
	}
	if !isolationLevels[strings.ToUpper(repo.IsolationLevel)] {
		result = multierror.Append(result, fmt.Errorf("unknown batch.repository.isolation_level '%s'", repo.IsolationLevel))
	}
	switch c.Batch.Metrics.Exporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterOTLPGRPC:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown batch.metrics.exporter '%s'", c.Batch.Metrics.Exporter))
	}
	switch c.Batch.Tracing.Exporter {
	case "", ExporterNone, ExporterOTLP, ExporterOTLPGRPC:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown batch.tracing.exporter '%s'", c.Batch.Tracing.Exporter))
	}

	return result.ErrorOrNil()
}
