// Package incrementer derives the parameters of the next job instance from the previous ones.
package incrementer

import (
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// JobParametersIncrementer is an interface for automatically incrementing JobParameters.
type JobParametersIncrementer interface {
	// GetNext generates the next JobParameters based on the current parameters.
	// params is empty when the job has never run.
	GetNext(params model.JobParameters) model.JobParameters
}
