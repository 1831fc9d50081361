package sql

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

const (
	saveStepExecutionSQL = `INSERT INTO %PREFIX%STEP_EXECUTION (STEP_EXECUTION_ID, VERSION, STEP_NAME, JOB_EXECUTION_ID,
		START_TIME, END_TIME, STATUS, COMMIT_COUNT, READ_COUNT, FILTER_COUNT, WRITE_COUNT, EXIT_CODE, EXIT_MESSAGE,
		READ_SKIP_COUNT, WRITE_SKIP_COUNT, PROCESS_SKIP_COUNT, ROLLBACK_COUNT, LAST_UPDATED)
		VALUES (@id, @version, @stepName, @jobExecutionId, @startTime, @endTime, @status, @commitCount, @readCount,
		@filterCount, @writeCount, @exitCode, @exitMessage, @readSkipCount, @writeSkipCount, @processSkipCount,
		@rollbackCount, @lastUpdated)`

	checkStepExecutionExistsSQL = "SELECT COUNT(*) FROM %PREFIX%STEP_EXECUTION WHERE STEP_EXECUTION_ID = @id"

	updateStepExecutionSQL = `UPDATE %PREFIX%STEP_EXECUTION SET START_TIME = @startTime, END_TIME = @endTime,
		STATUS = @status, COMMIT_COUNT = @commitCount, READ_COUNT = @readCount, FILTER_COUNT = @filterCount,
		WRITE_COUNT = @writeCount, EXIT_CODE = @exitCode, EXIT_MESSAGE = @exitMessage, VERSION = @newVersion,
		READ_SKIP_COUNT = @readSkipCount, PROCESS_SKIP_COUNT = @processSkipCount, WRITE_SKIP_COUNT = @writeSkipCount,
		ROLLBACK_COUNT = @rollbackCount, LAST_UPDATED = @lastUpdated
		WHERE STEP_EXECUTION_ID = @id AND VERSION = @version`

	currentStepExecutionVersionSQL = "SELECT VERSION FROM %PREFIX%STEP_EXECUTION WHERE STEP_EXECUTION_ID = @id"

	getStepExecutionSQL = "SELECT " + stepExecutionColumns +
		" FROM %PREFIX%STEP_EXECUTION WHERE JOB_EXECUTION_ID = @jobExecutionId AND STEP_EXECUTION_ID = @id"

	getStepExecutionsSQL = "SELECT " + stepExecutionColumns +
		" FROM %PREFIX%STEP_EXECUTION WHERE JOB_EXECUTION_ID = @jobExecutionId ORDER BY STEP_EXECUTION_ID"
)

// SQLStepExecutionDao implements repository.StepExecutionDao on the STEP_EXECUTION table.
type SQLStepExecutionDao struct {
	*daoSupport
}

// NewSQLStepExecutionDao creates a SQLStepExecutionDao.
func NewSQLStepExecutionDao(support *daoSupport) *SQLStepExecutionDao {
	return &SQLStepExecutionDao{daoSupport: support}
}

var _ repository.StepExecutionDao = (*SQLStepExecutionDao)(nil)

func validateNewStepExecution(op string, stepExecution *model.StepExecution) error {
	if stepExecution == nil {
		return exception.NewIllegalArgumentError(op, "StepExecution cannot be nil", nil)
	}
	if stepExecution.HasID() || stepExecution.HasVersion() {
		return exception.NewIllegalArgumentError(op, "StepExecution must not already have been persisted", nil)
	}
	if stepExecution.JobExecution() == nil || !stepExecution.JobExecution().HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must belong to a saved JobExecution", nil)
	}
	return nil
}

// stepExecutionParams returns the column values shared by insert and update.
// The state is read in one snapshot so a concurrent Apply never yields a mixed row.
func (d *SQLStepExecutionDao) stepExecutionParams(id int64, se *model.StepExecution) map[string]interface{} {
	state := se.Snapshot()
	return map[string]interface{}{
		"id":               id,
		"startTime":        nullableTime(state.StartTime),
		"endTime":          nullableTime(state.EndTime),
		"status":           state.Status.String(),
		"commitCount":      state.CommitCount,
		"readCount":        state.ReadCount,
		"filterCount":      state.FilterCount,
		"writeCount":       state.WriteCount,
		"exitCode":         state.ExitStatus.ExitCode(),
		"exitMessage":      d.truncateExitDescription("step execution", id, state.ExitStatus.ExitDescription()),
		"readSkipCount":    state.ReadSkipCount,
		"writeSkipCount":   state.WriteSkipCount,
		"processSkipCount": state.ProcessSkipCount,
		"rollbackCount":    state.RollbackCount,
		"lastUpdated":      nullableTime(state.LastUpdated),
	}
}

func (d *SQLStepExecutionDao) insert(ctx context.Context, se *model.StepExecution) (int64, error) {
	id, err := d.incrementer("STEP_EXECUTION_SEQ").NextLong(ctx)
	if err != nil {
		return 0, err
	}
	params := d.stepExecutionParams(id, se)
	params["version"] = 0
	params["stepName"] = se.StepName()
	params["jobExecutionId"] = se.JobExecutionID()
	if _, err := d.exec.Update(ctx, d.query(saveStepExecutionSQL), params); err != nil {
		return 0, err
	}
	return id, nil
}

// SaveStepExecution implements repository.StepExecutionDao.
func (d *SQLStepExecutionDao) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	return d.SaveStepExecutions(ctx, []*model.StepExecution{stepExecution})
}

// SaveStepExecutions implements repository.StepExecutionDao.
// Every element is validated before anything is written, and all rows go in one transaction.
func (d *SQLStepExecutionDao) SaveStepExecutions(ctx context.Context, stepExecutions []*model.StepExecution) error {
	const op = "SQLStepExecutionDao.SaveStepExecutions"

	if stepExecutions == nil {
		return exception.NewIllegalArgumentError(op, "Attempt to save a nil collection of step executions", nil)
	}
	var invalid *multierror.Error
	for _, se := range stepExecutions {
		invalid = multierror.Append(invalid, validateNewStepExecution(op, se))
	}
	if err := invalid.ErrorOrNil(); err != nil {
		return exception.NewIllegalArgumentError(op, err.Error(), err)
	}

	ids := make([]int64, len(stepExecutions))
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		for i, se := range stepExecutions {
			id, err := d.insert(ctx, se)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		return nil
	})
	if err != nil {
		return wrapError(op, "failed to save step executions", err)
	}

	for i, se := range stepExecutions {
		se.SetID(ids[i])
		se.IncrementVersion()
		logger.Debugf("Saved %s", se)
	}
	return nil
}

// UpdateStepExecution implements repository.StepExecutionDao.
func (d *SQLStepExecutionDao) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLStepExecutionDao.UpdateStepExecution"

	if stepExecution == nil || !stepExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution ID cannot be nil", nil)
	}
	if !stepExecution.HasVersion() {
		return exception.NewIllegalArgumentError(op, "StepExecution version cannot be nil", nil)
	}
	if stepExecution.JobExecution() == nil || !stepExecution.JobExecution().HasID() {
		return exception.NewIllegalArgumentError(op, "StepExecution must belong to a saved JobExecution", nil)
	}
	id := stepExecution.ID()

	stepExecution.LockForUpdate()
	defer stepExecution.UnlockForUpdate()

	version := stepExecution.Version()
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		exists, _, err := database.QueryForInt64(ctx, d.exec, d.query(checkStepExecutionExistsSQL), map[string]interface{}{"id": id})
		if err != nil {
			return err
		}
		if exists != 1 {
			return exception.NewBatchErrorf(op, "step execution %d must already be saved", id, repository.ErrStepExecutionNotFound)
		}

		params := d.stepExecutionParams(id, stepExecution)
		params["version"] = version
		params["newVersion"] = version + 1
		count, err := d.exec.Update(ctx, d.query(updateStepExecutionSQL), params)
		if err != nil {
			return err
		}
		if count == 0 {
			current, _, err := database.QueryForInt64(ctx, d.exec, d.query(currentStepExecutionVersionSQL), map[string]interface{}{"id": id})
			if err != nil {
				return err
			}
			logger.Warnf("Optimistic locking conflict on step execution %d: version %d, stored %d", id, version, current)
			return exception.NewOptimisticLockingFailureException(op, "step execution", id, version, int(current))
		}
		return nil
	})
	if err != nil {
		return wrapError(op, fmt.Sprintf("failed to update step execution %d", id), err)
	}

	stepExecution.IncrementVersion()
	return nil
}

// GetStepExecution implements repository.StepExecutionDao.
func (d *SQLStepExecutionDao) GetStepExecution(ctx context.Context, jobExecution *model.JobExecution, stepExecutionID int64) (*model.StepExecution, error) {
	const op = "SQLStepExecutionDao.GetStepExecution"

	if jobExecution == nil || !jobExecution.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}
	var entity *StepExecutionEntity
	var found bool
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		entity, found, err = database.QueryForObject(ctx, d.exec, d.query(getStepExecutionSQL),
			map[string]interface{}{"jobExecutionId": jobExecution.ID(), "id": stepExecutionID}, scanStepExecution)
		return err
	})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to read step execution %d", stepExecutionID), err)
	}
	if !found {
		return nil, exception.NewBatchErrorf(op, "step execution %d not found", stepExecutionID, repository.ErrStepExecutionNotFound)
	}
	se, err := toDomainStepExecution(entity, jobExecution)
	if err != nil {
		return nil, wrapError(op, "failed to map step execution", err)
	}
	return se, nil
}

// AddStepExecutions implements repository.StepExecutionDao.
func (d *SQLStepExecutionDao) AddStepExecutions(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLStepExecutionDao.AddStepExecutions"

	if jobExecution == nil || !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}
	var entities []*StepExecutionEntity
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		entities, err = database.QueryForList(ctx, d.exec, d.query(getStepExecutionsSQL),
			map[string]interface{}{"jobExecutionId": jobExecution.ID()}, scanStepExecution)
		return err
	})
	if err != nil {
		return wrapError(op, fmt.Sprintf("failed to load step executions of job execution %d", jobExecution.ID()), err)
	}

	executions := make([]*model.StepExecution, 0, len(entities))
	for _, entity := range entities {
		se, err := toDomainStepExecution(entity, jobExecution)
		if err != nil {
			return wrapError(op, "failed to map step execution", err)
		}
		executions = append(executions, se)
	}
	jobExecution.AddStepExecutions(executions)
	return nil
}
