package usecase

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/batchstate/pkg/batch/core/config"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/batchstate/pkg/batch/core/metrics"
)

// NewJobRepository provides the SimpleJobRepository with the configured parameter masking.
func NewJobRepository(daos repository.Daos, recorder metrics.MetricRecorder, tracer metrics.Tracer, security *config.SecurityConfig) *SimpleJobRepository {
	repo := NewSimpleJobRepository(daos, recorder, tracer)
	repo.SetMaskedParameterKeys(security.MaskedParameterKeys)
	return repo
}

// Module is the Fx module for JobRepository, JobExplorer and JobOperator.
var Module = fx.Options(
	// Provide JobRepository
	fx.Provide(fx.Annotate(
		NewJobRepository,
		fx.As(new(repository.JobRepository)),
	)),
	// Provide JobExplorer
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(repository.JobExplorer)),
	)),
	// Provide JobOperator
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
	)),
)
