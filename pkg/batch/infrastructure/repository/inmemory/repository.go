// Package inmemory provides map-backed implementations of the job repository DAOs.
// Entities are copied on the way in and on the way out, so callers never share state with the store.
//
// There is no transaction spanning several entities: SaveStepExecutions and SaveStepExecutionContexts
// save one element after the other and a failure part way leaves the earlier elements stored.
// This backend is meant for tests and single-process use.
package inmemory

import (
	"sync/atomic"

	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// idSequence hands out ids starting at 1.
type idSequence struct {
	last atomic.Int64
}

func (s *idSequence) next() int64 {
	return s.last.Add(1)
}

// NewDaos creates the four DAOs of one in-memory backend.
func NewDaos() repository.Daos {
	return repository.Daos{
		JobInstanceDao:      NewJobInstanceDao(),
		JobExecutionDao:     NewJobExecutionDao(),
		StepExecutionDao:    NewStepExecutionDao(),
		ExecutionContextDao: NewExecutionContextDao(),
	}
}

func notFound(op, format string, id int64, sentinel error) error {
	return exception.NewBatchErrorf(op, format, id, sentinel)
}

func alreadyPersisted(op, kind string) error {
	return exception.NewIllegalArgumentError(op, kind+" must not already have been persisted", nil)
}
