package incrementer

import (
	"fmt"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// DefaultRunIDKey is the parameter RunIDIncrementer maintains when no name is given.
const DefaultRunIDKey = "run.id"

// RunIDIncrementer is an implementation of JobParametersIncrementer that adds or increments a LONG "run.id" parameter.
// It sets the parameter to 1 if it does not exist, or increments its value if it does. Other parameters are kept.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a new instance of RunIDIncrementer.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{
		name: name,
	}
}

// GetNext adds or increments the run id in the given JobParameters and returns the new parameters.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	current := params.GetLong(i.name)
	next := current + 1

	if current == 0 {
		logger.Debugf("JobParametersIncrementer '%s': '%s' not found, setting to 1.", i, i.name)
	} else {
		logger.Debugf("JobParametersIncrementer '%s': Incrementing '%s' from %d to %d.", i, i.name, current, next)
	}

	return model.NewJobParametersBuilderFrom(params).AddLong(i.name, next).ToJobParameters()
}

// String returns the string representation of RunIDIncrementer.
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ JobParametersIncrementer = (*RunIDIncrementer)(nil)
