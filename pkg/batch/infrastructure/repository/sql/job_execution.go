package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

const (
	saveJobExecutionSQL = `INSERT INTO %PREFIX%JOB_EXECUTION (JOB_EXECUTION_ID, JOB_INSTANCE_ID, START_TIME, END_TIME,
		STATUS, EXIT_CODE, EXIT_MESSAGE, VERSION, CREATE_TIME, LAST_UPDATED, JOB_CONFIGURATION_LOCATION)
		VALUES (@id, @jobInstanceId, @startTime, @endTime, @status, @exitCode, @exitMessage, @version,
		@createTime, @lastUpdated, @jobConfigurationLocation)`

	createJobParameterSQL = "INSERT INTO %PREFIX%JOB_EXECUTION_PARAMS (" + paramColumns + `)
		VALUES (@jobExecutionId, @keyName, @typeCd, @stringVal, @dateVal, @longVal, @doubleVal, @identifying)`

	checkJobExecutionExistsSQL = "SELECT COUNT(*) FROM %PREFIX%JOB_EXECUTION WHERE JOB_EXECUTION_ID = @id"

	updateJobExecutionSQL = `UPDATE %PREFIX%JOB_EXECUTION SET START_TIME = @startTime, END_TIME = @endTime,
		STATUS = @status, EXIT_CODE = @exitCode, EXIT_MESSAGE = @exitMessage, VERSION = @newVersion,
		CREATE_TIME = @createTime, LAST_UPDATED = @lastUpdated
		WHERE JOB_EXECUTION_ID = @id AND VERSION = @version`

	currentJobExecutionVersionSQL = "SELECT VERSION FROM %PREFIX%JOB_EXECUTION WHERE JOB_EXECUTION_ID = @id"

	getJobExecutionStatusSQL = "SELECT STATUS FROM %PREFIX%JOB_EXECUTION WHERE JOB_EXECUTION_ID = @id"

	jobExecutionFromSQL = " FROM %PREFIX%JOB_EXECUTION E, %PREFIX%JOB_INSTANCE I WHERE E.JOB_INSTANCE_ID = I.JOB_INSTANCE_ID"

	findJobExecutionsSQL = "SELECT " + jobExecutionColumns + jobExecutionFromSQL +
		" AND E.JOB_INSTANCE_ID = @jobInstanceId ORDER BY E.JOB_EXECUTION_ID DESC"

	getLastJobExecutionSQL = "SELECT " + jobExecutionColumns + jobExecutionFromSQL +
		` AND E.JOB_INSTANCE_ID = @jobInstanceId AND E.JOB_EXECUTION_ID =
		(SELECT MAX(E2.JOB_EXECUTION_ID) FROM %PREFIX%JOB_EXECUTION E2 WHERE E2.JOB_INSTANCE_ID = @jobInstanceId)`

	findRunningJobExecutionsSQL = "SELECT " + jobExecutionColumns + jobExecutionFromSQL +
		" AND E.END_TIME IS NULL AND I.JOB_NAME = @jobName ORDER BY E.JOB_EXECUTION_ID DESC"

	getJobExecutionSQL = "SELECT " + jobExecutionColumns + jobExecutionFromSQL + " AND E.JOB_EXECUTION_ID = @id"

	// The params table keeps no ordinal, so parameters read back in key order.
	findJobParametersSQL = "SELECT " + paramColumns + " FROM %PREFIX%JOB_EXECUTION_PARAMS WHERE JOB_EXECUTION_ID = @id ORDER BY KEY_NAME"
)

// SQLJobExecutionDao implements repository.JobExecutionDao on JOB_EXECUTION and JOB_EXECUTION_PARAMS.
type SQLJobExecutionDao struct {
	*daoSupport
}

// NewSQLJobExecutionDao creates a SQLJobExecutionDao.
func NewSQLJobExecutionDao(support *daoSupport) *SQLJobExecutionDao {
	return &SQLJobExecutionDao{daoSupport: support}
}

var _ repository.JobExecutionDao = (*SQLJobExecutionDao)(nil)

func (d *SQLJobExecutionDao) validate(op string, jobExecution *model.JobExecution) error {
	if jobExecution == nil {
		return exception.NewIllegalArgumentError(op, "JobExecution cannot be nil", nil)
	}
	if jobExecution.JobInstance() == nil || !jobExecution.JobInstance().HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution must belong to a saved JobInstance", nil)
	}
	if jobExecution.CreateTime() == nil {
		return exception.NewIllegalArgumentError(op, "JobExecution create time cannot be nil", nil)
	}
	return nil
}

// SaveJobExecution implements repository.JobExecutionDao.
// The execution and its parameters are written in one transaction.
func (d *SQLJobExecutionDao) SaveJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobExecutionDao.SaveJobExecution"

	if err := d.validate(op, jobExecution); err != nil {
		return err
	}
	if jobExecution.HasID() || jobExecution.HasVersion() {
		return exception.NewIllegalArgumentError(op, "JobExecution must not already have been persisted", nil)
	}

	var id int64
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		if id, err = d.incrementer("JOB_EXECUTION_SEQ").NextLong(ctx); err != nil {
			return err
		}
		state := jobExecution.Snapshot()
		_, err = d.exec.Update(ctx, d.query(saveJobExecutionSQL), map[string]interface{}{
			"id":                       id,
			"jobInstanceId":            jobExecution.JobID(),
			"startTime":                nullableTime(state.StartTime),
			"endTime":                  nullableTime(state.EndTime),
			"status":                   state.Status.String(),
			"exitCode":                 state.ExitStatus.ExitCode(),
			"exitMessage":              d.truncateExitDescription("job execution", id, state.ExitStatus.ExitDescription()),
			"version":                  0,
			"createTime":               nullableTime(state.CreateTime),
			"lastUpdated":              nullableTime(state.LastUpdated),
			"jobConfigurationLocation": jobExecution.JobConfigurationName(),
		})
		if err != nil {
			return err
		}
		return d.insertJobParameters(ctx, id, jobExecution.JobParameters())
	})
	if err != nil {
		return wrapError(op, "failed to save job execution", err)
	}

	jobExecution.SetID(id)
	jobExecution.IncrementVersion()
	logger.Debugf("Saved %s", jobExecution)
	return nil
}

func (d *SQLJobExecutionDao) insertJobParameters(ctx context.Context, jobExecutionID int64, params model.JobParameters) error {
	if params.IsEmpty() {
		return nil
	}
	batch := make([]map[string]interface{}, 0, params.Len())
	for _, key := range params.Keys() {
		param, _ := params.Get(key)
		batch = append(batch, fromDomainJobParameter(jobExecutionID, key, param))
	}
	_, err := d.exec.BatchUpdate(ctx, d.query(createJobParameterSQL), batch)
	return err
}

// UpdateJobExecution implements repository.JobExecutionDao.
func (d *SQLJobExecutionDao) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobExecutionDao.UpdateJobExecution"

	if err := d.validate(op, jobExecution); err != nil {
		return err
	}
	if !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution ID cannot be nil", nil)
	}
	if !jobExecution.HasVersion() {
		return exception.NewIllegalArgumentError(op, "JobExecution version cannot be nil", nil)
	}
	id := jobExecution.ID()

	jobExecution.LockForUpdate()
	defer jobExecution.UnlockForUpdate()

	version := jobExecution.Version()
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		exists, _, err := database.QueryForInt64(ctx, d.exec, d.query(checkJobExecutionExistsSQL), map[string]interface{}{"id": id})
		if err != nil {
			return err
		}
		if exists != 1 {
			return exception.NewBatchErrorf(op, "job execution %d must already be saved", id, repository.ErrJobExecutionNotFound)
		}

		state := jobExecution.Snapshot()
		count, err := d.exec.Update(ctx, d.query(updateJobExecutionSQL), map[string]interface{}{
			"startTime":   nullableTime(state.StartTime),
			"endTime":     nullableTime(state.EndTime),
			"status":      state.Status.String(),
			"exitCode":    state.ExitStatus.ExitCode(),
			"exitMessage": d.truncateExitDescription("job execution", id, state.ExitStatus.ExitDescription()),
			"newVersion":  version + 1,
			"createTime":  nullableTime(state.CreateTime),
			"lastUpdated": nullableTime(state.LastUpdated),
			"id":          id,
			"version":     version,
		})
		if err != nil {
			return err
		}
		if count == 0 {
			current, _, err := database.QueryForInt64(ctx, d.exec, d.query(currentJobExecutionVersionSQL), map[string]interface{}{"id": id})
			if err != nil {
				return err
			}
			logger.Warnf("Optimistic locking conflict on job execution %d: version %d, stored %d", id, version, current)
			return exception.NewOptimisticLockingFailureException(op, "job execution", id, version, int(current))
		}
		return nil
	})
	if err != nil {
		return wrapError(op, fmt.Sprintf("failed to update job execution %d", id), err)
	}

	jobExecution.IncrementVersion()
	return nil
}

// FindJobExecutions implements repository.JobExecutionDao.
func (d *SQLJobExecutionDao) FindJobExecutions(ctx context.Context, jobInstance *model.JobInstance) ([]*model.JobExecution, error) {
	const op = "SQLJobExecutionDao.FindJobExecutions"

	if jobInstance == nil || !jobInstance.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobInstance must have an id", nil)
	}
	executions, err := d.list(ctx, findJobExecutionsSQL, map[string]interface{}{"jobInstanceId": jobInstance.ID()})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to list executions of job instance %d", jobInstance.ID()), err)
	}
	return executions, nil
}

// GetLastJobExecution implements repository.JobExecutionDao.
func (d *SQLJobExecutionDao) GetLastJobExecution(ctx context.Context, jobInstance *model.JobInstance) (*model.JobExecution, error) {
	const op = "SQLJobExecutionDao.GetLastJobExecution"

	if jobInstance == nil || !jobInstance.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobInstance must have an id", nil)
	}
	executions, err := d.list(ctx, getLastJobExecutionSQL, map[string]interface{}{"jobInstanceId": jobInstance.ID()})
	if err != nil {
		return nil, wrapError(op, "failed to read the last job execution", err)
	}
	if len(executions) == 0 {
		return nil, exception.NewBatchErrorf(op, "job instance %d has no executions", jobInstance.ID(), repository.ErrJobExecutionNotFound)
	}
	return executions[0], nil
}

// FindRunningJobExecutions implements repository.JobExecutionDao.
// An execution is running as long as it has no end time.
func (d *SQLJobExecutionDao) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	executions, err := d.list(ctx, findRunningJobExecutionsSQL, map[string]interface{}{"jobName": jobName})
	if err != nil {
		return nil, wrapError("SQLJobExecutionDao.FindRunningJobExecutions", fmt.Sprintf("failed to list running executions of %s", jobName), err)
	}
	return executions, nil
}

// GetJobExecution implements repository.JobExecutionDao.
func (d *SQLJobExecutionDao) GetJobExecution(ctx context.Context, executionID int64) (*model.JobExecution, error) {
	const op = "SQLJobExecutionDao.GetJobExecution"

	executions, err := d.list(ctx, getJobExecutionSQL, map[string]interface{}{"id": executionID})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to read job execution %d", executionID), err)
	}
	if len(executions) == 0 {
		return nil, exception.NewBatchErrorf(op, "job execution %d not found", executionID, repository.ErrJobExecutionNotFound)
	}
	return executions[0], nil
}

// SynchronizeStatus implements repository.JobExecutionDao.
func (d *SQLJobExecutionDao) SynchronizeStatus(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLJobExecutionDao.SynchronizeStatus"

	if jobExecution == nil || !jobExecution.HasID() {
		return exception.NewIllegalArgumentError(op, "JobExecution ID cannot be nil", nil)
	}
	id := jobExecution.ID()

	var (
		version int64
		found   bool
		status  *string
	)
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		version, found, err = database.QueryForInt64(ctx, d.exec, d.query(currentJobExecutionVersionSQL), map[string]interface{}{"id": id})
		if err != nil || !found || int(version) == jobExecution.Version() {
			return err
		}
		status, _, err = database.QueryForObject(ctx, d.exec, d.query(getJobExecutionStatusSQL), map[string]interface{}{"id": id},
			func(row database.RowScanner) (*string, error) {
				var s *string
				return s, row.Scan(&s)
			})
		return err
	})
	if err != nil {
		return wrapError(op, fmt.Sprintf("failed to synchronize job execution %d", id), err)
	}
	if !found {
		return exception.NewBatchErrorf(op, "job execution %d not found", id, repository.ErrJobExecutionNotFound)
	}
	if int(version) != jobExecution.Version() {
		persisted, err := parseStatus(status)
		if err != nil {
			return wrapError(op, "failed to map job execution status", err)
		}
		jobExecution.UpgradeStatus(persisted)
		jobExecution.SetVersion(int(version))
	}
	return nil
}

// list runs a job execution query and attaches the parameters of every row.
// Rows are collected before the parameters are read so no query runs inside another.
func (d *SQLJobExecutionDao) list(ctx context.Context, query string, params map[string]interface{}) ([]*model.JobExecution, error) {
	var executions []*model.JobExecution
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		entities, err := database.QueryForList(ctx, d.exec, d.query(query), params, scanJobExecution)
		if err != nil {
			return err
		}
		executions = make([]*model.JobExecution, 0, len(entities))
		for _, entity := range entities {
			je, err := toDomainJobExecution(entity)
			if err != nil {
				return err
			}
			jobParams, err := d.jobParameters(ctx, entity.ID)
			if err != nil {
				return err
			}
			je.SetJobParameters(jobParams)
			executions = append(executions, je)
		}
		return nil
	})
	return executions, err
}

func (d *SQLJobExecutionDao) jobParameters(ctx context.Context, jobExecutionID int64) (model.JobParameters, error) {
	entities, err := database.QueryForList(ctx, d.exec, d.query(findJobParametersSQL), map[string]interface{}{"id": jobExecutionID}, scanJobParameter)
	if err != nil {
		return model.JobParameters{}, err
	}
	builder := model.NewJobParametersBuilder()
	for _, entity := range entities {
		param, err := toDomainJobParameter(entity)
		if err != nil {
			return model.JobParameters{}, fmt.Errorf("corrupt parameter %s of job execution %d: %w", entity.KeyName, jobExecutionID, err)
		}
		builder.AddParameter(entity.KeyName, param)
	}
	return builder.ToJobParameters(), nil
}
