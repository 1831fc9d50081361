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

// JobExecutionDao keeps job executions keyed by id. Stored copies carry no step executions.
type JobExecutionDao struct {
	mu            sync.RWMutex
	jobExecutions map[int64]*model.JobExecution
	ids           idSequence
}

// NewJobExecutionDao creates an empty JobExecutionDao.
func NewJobExecutionDao() *JobExecutionDao {
	return &JobExecutionDao{jobExecutions: make(map[int64]*model.JobExecution)}
}

var _ repository.JobExecutionDao = (*JobExecutionDao)(nil)

// SaveJobExecution implements repository.JobExecutionDao.
func (d *JobExecutionDao) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.JobExecutionDao.SaveJobExecution"

	if jobExecution == nil {
		return exception.NewIllegalArgumentError(op, "JobExecution cannot be nil", nil)
	}
	if jobExecution.HasID() || jobExecution.HasVersion() {
		return alreadyPersisted(op, "JobExecution")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	jobExecution.SetID(d.ids.next())
	jobExecution.IncrementVersion()
	d.jobExecutions[jobExecution.ID()] = jobExecution.CloneWithoutSteps()

	logger.Debugf("Saved %s", jobExecution)
	return nil
}

// UpdateJobExecution implements repository.JobExecutionDao.
func (d *JobExecutionDao) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.JobExecutionDao.UpdateJobExecution"

	if jobExecution == nil || !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution ID cannot be nil", nil)
	}
	id := jobExecution.ID()

	jobExecution.LockForUpdate()
	defer jobExecution.UnlockForUpdate()

	d.mu.Lock()
	defer d.mu.Unlock()

	persisted, ok := d.jobExecutions[id]
	if !ok {
		return notFound(op, "job execution %d must already be saved", id, repository.ErrJobExecutionNotFound)
	}
	if persisted.Version() != jobExecution.Version() {
		logger.Warnf("Optimistic locking conflict on job execution %d: version %d, stored %d", id, jobExecution.Version(), persisted.Version())
		return exception.NewOptimisticLockingFailureException(op, "job execution", id, jobExecution.Version(), persisted.Version())
	}
	jobExecution.IncrementVersion()
	d.jobExecutions[id] = jobExecution.CloneWithoutSteps()
	return nil
}

// FindJobExecutions implements repository.JobExecutionDao.
func (d *JobExecutionDao) FindJobExecutions(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	const op = "inmemory.JobExecutionDao.FindJobExecutions"

	if jobInstance == nil || !jobInstance.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobInstance must have an id", nil)
	}
	executions := d.filter(func(je *model.JobExecution) bool { return je.JobID() == jobInstance.ID() })
	return executions, nil
}

// GetLastJobExecution implements repository.JobExecutionDao.
func (d *JobExecutionDao) GetLastJobExecution(ctx context.Context, jobInstance *model.JobInstance) (*model.JobExecution, error) {
	executions, err := d.FindJobExecutions(ctx, jobInstance)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, notFound("inmemory.JobExecutionDao.GetLastJobExecution", "job instance %d has no executions", jobInstance.ID(), repository.ErrJobExecutionNotFound)
	}
	return executions[0], nil
}

// FindRunningJobExecutions implements repository.JobExecutionDao.
func (d *JobExecutionDao) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	executions := d.filter(func(je *model.JobExecution) bool {
		ji := je.JobInstance()
		return ji != nil && ji.JobName() == jobName && je.IsRunning()
	})
	return executions, nil
}

// GetJobExecution implements repository.JobExecutionDao.
func (d *JobExecutionDao) GetJobExecution(ctx context.Context, executionID int64) (*model.JobExecution, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	je, ok := d.jobExecutions[executionID]
	if !ok {
		return nil, notFound("inmemory.JobExecutionDao.GetJobExecution", "job execution %d not found", executionID, repository.ErrJobExecutionNotFound)
	}
	return je.CloneWithoutSteps(), nil
}

// SynchronizeStatus implements repository.JobExecutionDao.
func (d *JobExecutionDao) SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "inmemory.JobExecutionDao.SynchronizeStatus"

	if jobExecution == nil || !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution ID cannot be nil", nil)
	}

	d.mu.RLock()
	persisted, ok := d.jobExecutions[jobExecution.ID()]
	var version int
	var status model.BatchStatus
	if ok {
		version, status = persisted.Version(), persisted.Status()
	}
	d.mu.RUnlock()

	if !ok {
		return notFound(op, "job execution %d not found", jobExecution.ID(), repository.ErrJobExecutionNotFound)
	}
	if version != jobExecution.Version() {
		jobExecution.UpgradeStatus(status)
		jobExecution.SetVersion(version)
	}
	return nil
}

// filter returns copies of the matching executions, newest first.
func (d *JobExecutionDao) filter(match func(*model.JobExecution) bool) []*model.JobExecution {
	d.mu.RLock()
	out := make([]*model.JobExecution, 0)
	for _, je := range d.jobExecutions {
		if match(je) {
			out = append(out, je.CloneWithoutSteps())
		}
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() > out[j].ID() })
	return out
}
