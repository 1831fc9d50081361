package inmemory

import (
	"context"
	"sort"
	"sync"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// StepExecutionDao keeps step executions grouped by the id of their job execution.
type StepExecutionDao struct {
	mu                    sync.RWMutex
	executionsByJobExecID map[int64]map[int64]*model.StepExecution
	ids                   idSequence
}

// NewStepExecutionDao creates an empty StepExecutionDao.
func NewStepExecutionDao() *StepExecutionDao {
	return &StepExecutionDao{executionsByJobExecID: make(map[int64]map[int64]*model.StepExecution)}
}

var _ repository.StepExecutionDao = (*StepExecutionDao)(nil)

func validateNewStepExecution(op string, stepExecution *model.StepExecution) error {
	if stepExecution == nil {
		return exception.NewIllegalArgumentError(op, "StepExecution cannot be nil", nil)
	}
	if stepExecution.HasID() || stepExecution.HasVersion() {
		return alreadyPersisted(op, "StepExecution")
	}
	if stepExecution.JobExecution() == nil || !stepExecution.JobExecution().HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must belong to a saved JobExecution", nil)
	}
	return nil
}

// SaveStepExecution implements repository.StepExecutionDao.
func (d *StepExecutionDao) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "inmemory.StepExecutionDao.SaveStepExecution"

	if err := validateNewStepExecution(op, stepExecution); err != nil {
		return err
	}
	jobExecutionID := stepExecution.JobExecutionID()

	d.mu.Lock()
	defer d.mu.Unlock()

	executions, ok := d.executionsByJobExecID[jobExecutionID]
	if !ok {
		executions = make(map[int64]*model.StepExecution)
		d.executionsByJobExecID[jobExecutionID] = executions
	}
	stepExecution.SetID(d.ids.next())
	stepExecution.IncrementVersion()
	executions[stepExecution.ID()] = stepExecution.Clone()

	logger.Debugf("Saved %s", stepExecution)
	return nil
}

// SaveStepExecutions implements repository.StepExecutionDao.
// The step executions are saved one by one; an error leaves the ones before it saved.
func (d *StepExecutionDao) SaveStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error {
	const op = "inmemory.StepExecutionDao.SaveStepExecutions"

	if stepExecutions == nil {
		return exception.NewIllegalArgumentError(op, "Attempt to save a nil collection of step executions", nil)
	}
	for _, se := range stepExecutions {
		if err := d.SaveStepExecution(ctx, se); err != nil {
			return err
		}
	}
	return nil
}

// UpdateStepExecution implements repository.StepExecutionDao.
func (d *StepExecutionDao) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "inmemory.StepExecutionDao.UpdateStepExecution"

	if stepExecution == nil || !stepExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution ID cannot be nil", nil)
	}
	if stepExecution.JobExecution() == nil || !stepExecution.JobExecution().HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must belong to a saved JobExecution", nil)
	}
	id := stepExecution.ID()

	stepExecution.LockForUpdate()
	defer stepExecution.UnlockForUpdate()

	d.mu.Lock()
	defer d.mu.Unlock()

	persisted, ok := d.executionsByJobExecID[stepExecution.JobExecutionID()][id]
	if !ok {
		return notFound(op, "step execution %d must already be saved", id, repository.ErrStepExecutionNotFound)
	}
	if persisted.Version() != stepExecution.Version() {
		logger.Warnf("Optimistic locking conflict on step execution %d: version %d, stored %d", id, stepExecution.Version(), persisted.Version())
		return exception.NewOptimisticLockingFailureException(op, "step execution", id, stepExecution.Version(), persisted.Version())
	}
	stepExecution.IncrementVersion()
	d.executionsByJobExecID[stepExecution.JobExecutionID()][id] = stepExecution.Clone()
	return nil
}

// GetStepExecution implements repository.StepExecutionDao.
func (d *StepExecutionDao) GetStepExecution(ctx context.Context, jobExecution *model.JobExecution, stepExecutionID int64) (*model.StepExecution, error) {
	const op = "inmemory.StepExecutionDao.GetStepExecution"

	if jobExecution == nil || !jobExecution.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	se, ok := d.executionsByJobExecID[jobExecution.ID()][stepExecutionID]
	if !ok {
		return nil, notFound(op, "step execution %d not found", stepExecutionID, repository.ErrStepExecutionNotFound)
	}
	return se.CloneFor(jobExecution), nil
}

// AddStepExecutions implements repository.StepExecutionDao.
func (d *StepExecutionDao) AddStepExecutions(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.StepExecutionDao.AddStepExecutions"

	if jobExecution == nil || !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}

	d.mu.RLock()
	stored := d.executionsByJobExecID[jobExecution.ID()]
	copies := make([]*model.StepExecution, 0, len(stored))
	for _, se := range stored {
		copies = append(copies, se.CloneFor(jobExecution))
	}
	d.mu.RUnlock()

	sort.Slice(copies, func(i, j int) bool { return copies[i].ID() < copies[j].ID() })
	jobExecution.AddStepExecutions(copies)
	return nil
}
