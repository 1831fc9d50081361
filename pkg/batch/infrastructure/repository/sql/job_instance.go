package sql

import (
	"context"
	"fmt"
	"strings"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

const (
	createJobInstanceSQL = `INSERT INTO %PREFIX%JOB_INSTANCE (JOB_INSTANCE_ID, JOB_NAME, JOB_KEY, VERSION)
		VALUES (@id, @jobName, @jobKey, @version)`

	findJobInstanceByKeySQL = "SELECT " + jobInstanceColumns + " FROM %PREFIX%JOB_INSTANCE I WHERE I.JOB_NAME = @jobName AND I.JOB_KEY = @jobKey"

	getJobInstanceSQL = "SELECT " + jobInstanceColumns + " FROM %PREFIX%JOB_INSTANCE I WHERE I.JOB_INSTANCE_ID = @id"

	getJobInstanceForExecutionSQL = "SELECT " + jobInstanceColumns + ` FROM %PREFIX%JOB_INSTANCE I, %PREFIX%JOB_EXECUTION E
		WHERE E.JOB_EXECUTION_ID = @id AND I.JOB_INSTANCE_ID = E.JOB_INSTANCE_ID`

	findJobInstancesByNameSQL = "SELECT " + jobInstanceColumns + " FROM %PREFIX%JOB_INSTANCE I WHERE I.JOB_NAME = @jobName ORDER BY I.JOB_INSTANCE_ID DESC"

	findJobInstancesLikeNameSQL = "SELECT " + jobInstanceColumns + " FROM %PREFIX%JOB_INSTANCE I WHERE I.JOB_NAME LIKE @jobName ESCAPE '!' ORDER BY I.JOB_INSTANCE_ID DESC"

	findJobNamesSQL = "SELECT DISTINCT JOB_NAME FROM %PREFIX%JOB_INSTANCE ORDER BY JOB_NAME"

	countJobInstancesSQL = "SELECT COUNT(*) FROM %PREFIX%JOB_INSTANCE WHERE JOB_NAME = @jobName"
)

// SQLJobInstanceDao implements repository.JobInstanceDao on the JOB_INSTANCE table.
type SQLJobInstanceDao struct {
	*daoSupport
	keyGenerator model.JobKeyGenerator
}

// NewSQLJobInstanceDao creates a SQLJobInstanceDao.
func NewSQLJobInstanceDao(support *daoSupport) *SQLJobInstanceDao {
	return &SQLJobInstanceDao{daoSupport: support, keyGenerator: model.NewDefaultJobKeyGenerator()}
}

var _ repository.JobInstanceDao = (*SQLJobInstanceDao)(nil)

// CreateJobInstance implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SQLJobInstanceDao.CreateJobInstance"

	jobInstance, err := model.NewJobInstance(jobName)
	if err != nil {
		return nil, exception.NewIllegalArgumentError(op, err.Error(), err)
	}
	jobKey := d.keyGenerator.GenerateKey(params)

	var id int64
	err = d.inTransaction(ctx, func(ctx context.Context) error {
		_, found, err := d.findByKey(ctx, jobName, jobKey)
		if err != nil {
			return err
		}
		if found {
			return exception.NewIllegalArgumentError(op, "JobInstance must not already exist", nil)
		}
		if id, err = d.incrementer("JOB_SEQ").NextLong(ctx); err != nil {
			return err
		}
		_, err = d.exec.Update(ctx, d.query(createJobInstanceSQL), map[string]interface{}{
			"id":      id,
			"jobName": jobName,
			"jobKey":  jobKey,
			"version": 0,
		})
		if err != nil && d.exec.IsUniqueViolation(err) {
			return exception.NewIllegalArgumentError(op, "JobInstance must not already exist", err)
		}
		return err
	})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to create job instance for job %s", jobName), err)
	}

	jobInstance.SetID(id)
	jobInstance.IncrementVersion()
	logger.Debugf("Created %s (key %s)", jobInstance, jobKey)
	return jobInstance, nil
}

func (d *SQLJobInstanceDao) findByKey(ctx context.Context, jobName, jobKey string) (*model.JobInstance, bool, error) {
	entity, found, err := database.QueryForObject(ctx, d.exec, d.query(findJobInstanceByKeySQL),
		map[string]interface{}{"jobName": jobName, "jobKey": jobKey}, scanJobInstance)
	if err != nil || !found {
		return nil, false, err
	}
	ji, err := toDomainJobInstance(entity)
	return ji, err == nil, err
}

// GetJobInstance implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "SQLJobInstanceDao.GetJobInstance"

	jobKey := d.keyGenerator.GenerateKey(params)
	var ji *model.JobInstance
	var found bool
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		ji, found, err = d.findByKey(ctx, jobName, jobKey)
		return err
	})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to read job instance of job %s", jobName), err)
	}
	if !found {
		return nil, exception.NewBatchErrorf(op, "no job instance for job %s and key %s", jobName, jobKey, repository.ErrJobInstanceNotFound)
	}
	return ji, nil
}

// GetJobInstanceByID implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobInstanceByID(ctx context.Context, instanceID int64) (*model.JobInstance, error) {
	return d.getOne(ctx, "SQLJobInstanceDao.GetJobInstanceByID", getJobInstanceSQL, instanceID, "job instance %d not found")
}

// GetJobInstanceForExecution implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobInstanceForExecution(ctx context.Context, jobExecution *model.JobExecution) (*model.JobInstance, error) {
	const op = "SQLJobInstanceDao.GetJobInstanceForExecution"

	if jobExecution == nil || !jobExecution.HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}
	return d.getOne(ctx, op, getJobInstanceForExecutionSQL, jobExecution.ID(), "no job instance for job execution %d")
}

func (d *SQLJobInstanceDao) getOne(ctx context.Context, op, query string, id int64, notFoundFormat string) (*model.JobInstance, error) {
	var entity *JobInstanceEntity
	var found bool
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		entity, found, err = database.QueryForObject(ctx, d.exec, d.query(query), map[string]interface{}{"id": id}, scanJobInstance)
		return err
	})
	if err != nil {
		return nil, wrapError(op, "failed to read job instance", err)
	}
	if !found {
		return nil, exception.NewBatchErrorf(op, notFoundFormat, id, repository.ErrJobInstanceNotFound)
	}
	ji, err := toDomainJobInstance(entity)
	if err != nil {
		return nil, wrapError(op, "failed to map job instance", err)
	}
	return ji, nil
}

// GetJobInstances implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return d.page(ctx, "SQLJobInstanceDao.GetJobInstances", findJobInstancesByNameSQL, jobName, start, count)
}

// FindJobInstancesByName implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	const op = "SQLJobInstanceDao.FindJobInstancesByName"

	if strings.Contains(jobName, "*") {
		return d.page(ctx, op, findJobInstancesLikeNameSQL, likePattern(jobName), start, count)
	}
	return d.page(ctx, op, findJobInstancesByNameSQL, jobName, start, count)
}

// likeEscaper makes LIKE metacharacters in a job name match literally, with '!' as the escape character.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// likePattern converts a "*" wildcard pattern into a LIKE pattern.
func likePattern(jobName string) string {
	return strings.ReplaceAll(likeEscaper.Replace(jobName), "*", "%")
}

// page skips the first start rows and collects at most count of the rest.
func (d *SQLJobInstanceDao) page(ctx context.Context, op, query, jobName string, start, count int) ([]*model.JobInstance, error) {
	out := make([]*model.JobInstance, 0)
	if count <= 0 {
		return out, nil
	}
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		row := 0
		return d.exec.Query(ctx, d.query(query), map[string]interface{}{"jobName": jobName}, func(r database.RowScanner) error {
			defer func() { row++ }()
			if row < start || len(out) >= count {
				return nil
			}
			entity, err := scanJobInstance(r)
			if err != nil {
				return err
			}
			ji, err := toDomainJobInstance(entity)
			if err != nil {
				return err
			}
			out = append(out, ji)
			return nil
		})
	})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to list job instances of %s", jobName), err)
	}
	return out, nil
}

// GetJobNames implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobNames(ctx context.Context) ([]string, error) {
	var names []string
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		names, err = database.QueryForStrings(ctx, d.exec, d.query(findJobNamesSQL), nil)
		return err
	})
	if err != nil {
		return nil, wrapError("SQLJobInstanceDao.GetJobNames", "failed to list job names", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// GetJobInstanceCount implements repository.JobInstanceDao.
func (d *SQLJobInstanceDao) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	const op = "SQLJobInstanceDao.GetJobInstanceCount"

	var count int64
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		count, _, err = database.QueryForInt64(ctx, d.exec, d.query(countJobInstancesSQL), map[string]interface{}{"jobName": jobName})
		return err
	})
	if err != nil {
		return 0, wrapError(op, fmt.Sprintf("failed to count job instances of %s", jobName), err)
	}
	if count == 0 {
		return 0, exception.NewNoSuchJobException(op, jobName)
	}
	return int(count), nil
}
