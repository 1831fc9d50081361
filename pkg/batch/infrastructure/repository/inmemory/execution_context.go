package inmemory

import (
	"context"
	"fmt"
	"sync"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// ContextKind tells job contexts from step contexts.
type ContextKind int

const (
	// ContextKindStep keys the context of a step execution.
	ContextKindStep ContextKind = iota
	// ContextKindJob keys the context of a job execution.
	ContextKindJob
)

func (k ContextKind) String() string {
	if k == ContextKindJob {
		return "JOB"
	}
	return "STEP"
}

// ContextKey identifies a stored execution context. A job execution and a step execution
// with the same id have different keys.
type ContextKey struct {
	Kind ContextKind
	ID   int64
}

// JobContextKey returns the key of a job execution context.
func JobContextKey(id int64) ContextKey { return ContextKey{Kind: ContextKindJob, ID: id} }

// StepContextKey returns the key of a step execution context.
func StepContextKey(id int64) ContextKey { return ContextKey{Kind: ContextKindStep, ID: id} }

// Compare orders keys by id, then step before job. It returns -1, 0 or 1.
func (k ContextKey) Compare(other ContextKey) int {
	switch {
	case k.ID < other.ID:
		return -1
	case k.ID > other.ID:
		return 1
	case k.Kind < other.Kind:
		return -1
	case k.Kind > other.Kind:
		return 1
	}
	return 0
}

// Hash spreads job keys to the negative range so they do not collide with step keys of the same id.
func (k ContextKey) Hash() int64 {
	if k.Kind == ContextKindJob {
		return -k.ID
	}
	return k.ID
}

func (k ContextKey) String() string {
	return fmt.Sprintf("ContextKey[%s,%d]", k.Kind, k.ID)
}

// ExecutionContextDao keeps copies of execution contexts.
type ExecutionContextDao struct {
	mu       sync.RWMutex
	contexts map[ContextKey]*model.ExecutionContext
}

// NewExecutionContextDao creates an empty ExecutionContextDao.
func NewExecutionContextDao() *ExecutionContextDao {
	return &ExecutionContextDao{contexts: make(map[ContextKey]*model.ExecutionContext)}
}

var _ repository.ExecutionContextDao = (*ExecutionContextDao)(nil)

func (d *ExecutionContextDao) get(key ContextKey) *model.ExecutionContext {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stored, ok := d.contexts[key]
	if !ok {
		return model.NewExecutionContext()
	}
	ec := stored.Copy()
	ec.ClearDirtyFlag()
	return ec
}

// put stores a copy of ec. insert demands that no context is stored under key yet,
// otherwise one must be.
func (d *ExecutionContextDao) put(op string, key ContextKey, ec *model.ExecutionContext, insert bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, exists := d.contexts[key]
	switch {
	case insert && exists:
		return exception.NewIllegalArgumentError(op, fmt.Sprintf("an execution context is already stored for %s", key), nil)
	case !insert && !exists:
		sentinel := repository.ErrStepExecutionNotFound
		if key.Kind == ContextKindJob {
			sentinel = repository.ErrJobExecutionNotFound
		}
		return notFound(op, "no execution context stored for id %d", key.ID, sentinel)
	}
	stored := ec.Copy()
	stored.ClearDirtyFlag()
	d.contexts[key] = stored
	return nil
}

func jobKeyOf(op string, jobExecution *model.JobExecution) (ContextKey, error) {
	if jobExecution == nil || !jobExecution.HasID() {
		return ContextKey{}, exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}
	return JobContextKey(jobExecution.ID()), nil
}

func stepKeyOf(op string, stepExecution *model.StepExecution) (ContextKey, error) {
	if stepExecution == nil || !stepExecution.HasID() {
		return ContextKey{}, exception.NewIllegalArgumentError(op, "StepExecution must have an id", nil)
	}
	return StepContextKey(stepExecution.ID()), nil
}

// GetJobExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) GetJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) (*model.ExecutionContext, error) {
	key, err := jobKeyOf("inmemory.ExecutionContextDao.GetJobExecutionContext", jobExecution)
	if err != nil {
		return nil, err
	}
	return d.get(key), nil
}

// GetStepExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) GetStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) (*model.ExecutionContext, error) {
	key, err := stepKeyOf("inmemory.ExecutionContextDao.GetStepExecutionContext", stepExecution)
	if err != nil {
		return nil, err
	}
	return d.get(key), nil
}

// SaveJobExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) SaveJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.ExecutionContextDao.SaveJobExecutionContext"
	key, err := jobKeyOf(op, jobExecution)
	if err != nil {
		return err
	}
	return d.put(op, key, jobExecution.ExecutionContext(), true)
}

// SaveStepExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) SaveStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "inmemory.ExecutionContextDao.SaveStepExecutionContext"
	key, err := stepKeyOf(op, stepExecution)
	if err != nil {
		return err
	}
	return d.put(op, key, stepExecution.ExecutionContext(), true)
}

// SaveStepExecutionContexts implements repository.ExecutionContextDao.
// Contexts are saved one by one; an error leaves the ones before it saved.
func (d *ExecutionContextDao) SaveStepExecutionContexts(ctx context.Context, stepExecutions []*model.StepExecution) error {
	const op = "inmemory.ExecutionContextDao.SaveStepExecutionContexts"

	if stepExecutions == nil {
		return exception.NewIllegalArgumentError(op, "Attempt to save a nil collection of step executions", nil)
	}
	for _, se := range stepExecutions {
		if err := d.SaveStepExecutionContext(ctx, se); err != nil {
			return err
		}
	}
	return nil
}

// UpdateJobExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.ExecutionContextDao.UpdateJobExecutionContext"
	key, err := jobKeyOf(op, jobExecution)
	if err != nil {
		return err
	}
	return d.put(op, key, jobExecution.ExecutionContext(), false)
}

// UpdateStepExecutionContext implements repository.ExecutionContextDao.
func (d *ExecutionContextDao) UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "inmemory.ExecutionContextDao.UpdateStepExecutionContext"
	key, err := stepKeyOf(op, stepExecution)
	if err != nil {
		return err
	}
	return d.put(op, key, stepExecution.ExecutionContext(), false)
}
