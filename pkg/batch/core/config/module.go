package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Batch.System.Logging
}

// NewRepositoryConfigProvider extracts *RepositoryConfig from *Config.
func NewRepositoryConfigProvider(cfg *Config) *RepositoryConfig {
	return &cfg.Batch.Repository
}

// NewSecurityConfigProvider extracts *SecurityConfig from *Config.
func NewSecurityConfigProvider(cfg *Config) *SecurityConfig {
	return &cfg.Batch.Security
}

// NewMetricsConfigProvider extracts *MetricsConfig from *Config.
func NewMetricsConfigProvider(cfg *Config) *MetricsConfig {
	return &cfg.Batch.Metrics
}

// NewTracingConfigProvider extracts *TracingConfig from *Config.
func NewTracingConfigProvider(cfg *Config) *TracingConfig {
	return &cfg.Batch.Tracing
}

// Module provides *Config, its sections and the EnvironmentExpander to Fx.
// The application supplies EmbeddedConfig (and optionally the named "envFilePath" string).
var Module = fx.Options(
	fx.Provide(
		NewConfigProvider,
		NewLoggingConfigProvider,
		NewRepositoryConfigProvider,
		NewSecurityConfigProvider,
		NewMetricsConfigProvider,
		NewTracingConfigProvider,
	),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)
