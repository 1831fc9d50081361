package incrementer

import (
	"fmt"

	"github.com/google/uuid"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// DefaultRunTokenKey is the parameter UUIDIncrementer sets when no name is given.
const DefaultRunTokenKey = "run.token"

// UUIDIncrementer sets an identifying STRING parameter to a fresh random UUID on every call,
// so that each launch creates a new job instance.
type UUIDIncrementer struct {
	name string
}

// NewUUIDIncrementer creates a new instance of UUIDIncrementer.
func NewUUIDIncrementer(name string) *UUIDIncrementer {
	if name == "" {
		name = DefaultRunTokenKey
	}
	return &UUIDIncrementer{name: name}
}

// GetNext replaces the run token in the given JobParameters and returns the new parameters.
func (i *UUIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	token := uuid.NewString()
	logger.Debugf("JobParametersIncrementer '%s': Setting '%s' to %s.", i, i.name, token)
	return model.NewJobParametersBuilderFrom(params).AddString(i.name, token).ToJobParameters()
}

// String returns the string representation of UUIDIncrementer.
func (i *UUIDIncrementer) String() string {
	return fmt.Sprintf("UUIDIncrementer[name=%s]", i.name)
}

var _ JobParametersIncrementer = (*UUIDIncrementer)(nil)
