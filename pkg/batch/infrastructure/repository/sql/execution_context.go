package sql

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/serialization"
)

// contextTable describes one of the two context tables.
type contextTable struct {
	entity   string
	table    string
	idColumn string
	notFound error
}

var (
	jobContextTable = contextTable{
		entity:   "job execution",
		table:    "%PREFIX%JOB_EXECUTION_CONTEXT",
		idColumn: "JOB_EXECUTION_ID",
		notFound: repository.ErrJobExecutionNotFound,
	}
	stepContextTable = contextTable{
		entity:   "step execution",
		table:    "%PREFIX%STEP_EXECUTION_CONTEXT",
		idColumn: "STEP_EXECUTION_ID",
		notFound: repository.ErrStepExecutionNotFound,
	}
)

func (t contextTable) selectSQL() string {
	return "SELECT SERIALIZED_CONTEXT FROM " + t.table + " WHERE " + t.idColumn + " = @id"
}

func (t contextTable) countSQL() string {
	return "SELECT COUNT(*) FROM " + t.table + " WHERE " + t.idColumn + " = @id"
}

func (t contextTable) insertSQL() string {
	return "INSERT INTO " + t.table + " (" + t.idColumn + ", SERIALIZED_CONTEXT) VALUES (@id, @context)"
}

func (t contextTable) updateSQL() string {
	return "UPDATE " + t.table + " SET SERIALIZED_CONTEXT = @context WHERE " + t.idColumn + " = @id"
}

// SQLExecutionContextDao implements repository.ExecutionContextDao on the two context tables.
// Contexts are stored as one serialized blob per execution.
type SQLExecutionContextDao struct {
	*daoSupport
	serializer serialization.ExecutionContextSerializer
}

// NewSQLExecutionContextDao creates a SQLExecutionContextDao using serializer for the blobs.
func NewSQLExecutionContextDao(support *daoSupport, serializer serialization.ExecutionContextSerializer) *SQLExecutionContextDao {
	return &SQLExecutionContextDao{daoSupport: support, serializer: serializer}
}

var _ repository.ExecutionContextDao = (*SQLExecutionContextDao)(nil)

func jobExecutionIDOf(op string, jobExecution *model.JobExecution) (int64, error) {
	if jobExecution == nil || !jobExecution.HasID() {
		return 0, exception.NewIllegalArgumentError(op, "JobExecution must have an id", nil)
	}
	return jobExecution.ID(), nil
}

func stepExecutionIDOf(op string, stepExecution *model.StepExecution) (int64, error) {
	if stepExecution == nil || !stepExecution.HasID() {
		return 0, exception.NewIllegalArgumentError(op, "StepExecution must have an id", nil)
	}
	return stepExecution.ID(), nil
}

// GetJobExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) GetJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) (*model.ExecutionContext, error) {
	const op = "SQLExecutionContextDao.GetJobExecutionContext"
	id, err := jobExecutionIDOf(op, jobExecution)
	if err != nil {
		return nil, err
	}
	return d.get(ctx, op, jobContextTable, id)
}

// GetStepExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) GetStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) (*model.ExecutionContext, error) {
	const op = "SQLExecutionContextDao.GetStepExecutionContext"
	id, err := stepExecutionIDOf(op, stepExecution)
	if err != nil {
		return nil, err
	}
	return d.get(ctx, op, stepContextTable, id)
}

// get returns an empty context when no row exists.
func (d *SQLExecutionContextDao) get(ctx context.Context, op string, t contextTable, id int64) (*model.ExecutionContext, error) {
	var data *string
	err := d.inTransaction(ctx, func(ctx context.Context) error {
		var err error
		data, _, err = database.QueryForObject(ctx, d.exec, d.query(t.selectSQL()), map[string]interface{}{"id": id},
			func(row database.RowScanner) (*string, error) {
				var s *string
				return s, row.Scan(&s)
			})
		return err
	})
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to read the execution context of %s %d", t.entity, id), err)
	}
	if data == nil {
		return model.NewExecutionContext(), nil
	}
	ec, err := d.serializer.Deserialize([]byte(*data))
	if err != nil {
		return nil, wrapError(op, fmt.Sprintf("failed to deserialize the execution context of %s %d", t.entity, id), err)
	}
	return ec, nil
}

// SaveJobExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) SaveJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLExecutionContextDao.SaveJobExecutionContext"
	id, err := jobExecutionIDOf(op, jobExecution)
	if err != nil {
		return err
	}
	return d.inTransaction(ctx, func(ctx context.Context) error {
		return d.put(ctx, op, jobContextTable, id, jobExecution.ExecutionContext(), true)
	})
}

// SaveStepExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) SaveStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	return d.SaveStepExecutionContexts(ctx, []*model.StepExecution{stepExecution})
}

// SaveStepExecutionContexts implements repository.ExecutionContextDao.
// Nothing is written unless every step execution has an id; the inserts share one transaction.
func (d *SQLExecutionContextDao) SaveStepExecutionContexts(ctx context.Context, stepExecutions []*model.StepExecution) error {
	const op = "SQLExecutionContextDao.SaveStepExecutionContexts"

	if stepExecutions == nil {
		return exception.NewIllegalArgumentError(op, "Attempt to save a nil collection of step executions", nil)
	}
	var invalid *multierror.Error
	for _, se := range stepExecutions {
		_, err := stepExecutionIDOf(op, se)
		invalid = multierror.Append(invalid, err)
	}
	if err := invalid.ErrorOrNil(); err != nil {
		return exception.NewIllegalArgumentError(op, err.Error(), err)
	}

	return d.inTransaction(ctx, func(ctx context.Context) error {
		for _, se := range stepExecutions {
			if err := d.put(ctx, op, stepContextTable, se.ID(), se.ExecutionContext(), true); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateJobExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) UpdateJobExecutionContext(ctx context.Context, jobExecution *model.JobExecution) error {
	const op = "SQLExecutionContextDao.UpdateJobExecutionContext"
	id, err := jobExecutionIDOf(op, jobExecution)
	if err != nil {
		return err
	}
	return d.inTransaction(ctx, func(ctx context.Context) error {
		return d.put(ctx, op, jobContextTable, id, jobExecution.ExecutionContext(), false)
	})
}

// UpdateStepExecutionContext implements repository.ExecutionContextDao.
func (d *SQLExecutionContextDao) UpdateStepExecutionContext(ctx context.Context, stepExecution *model.StepExecution) error {
	const op = "SQLExecutionContextDao.UpdateStepExecutionContext"
	id, err := stepExecutionIDOf(op, stepExecution)
	if err != nil {
		return err
	}
	return d.inTransaction(ctx, func(ctx context.Context) error {
		return d.put(ctx, op, stepContextTable, id, stepExecution.ExecutionContext(), false)
	})
}

// put inserts or overwrites the serialized context. insert demands that no row exists yet,
// otherwise one must. The existence check runs first because MySQL reports 0 affected rows
// for an UPDATE that leaves the row unchanged.
func (d *SQLExecutionContextDao) put(ctx context.Context, op string, t contextTable, id int64, ec *model.ExecutionContext, insert bool) error {
	data, err := d.serializer.Serialize(ec)
	if err != nil {
		return err
	}
	count, _, err := database.QueryForInt64(ctx, d.exec, d.query(t.countSQL()), map[string]interface{}{"id": id})
	if err != nil {
		return wrapError(op, "failed to look up the execution context", err)
	}

	params := map[string]interface{}{"id": id, "context": string(data)}
	switch {
	case insert && count > 0:
		return exception.NewIllegalArgumentError(op, fmt.Sprintf("an execution context is already stored for %s %d", t.entity, id), nil)
	case insert:
		if _, err := d.exec.Update(ctx, d.query(t.insertSQL()), params); err != nil {
			if d.exec.IsUniqueViolation(err) {
				return exception.NewIllegalArgumentError(op, fmt.Sprintf("an execution context is already stored for %s %d", t.entity, id), err)
			}
			return wrapError(op, fmt.Sprintf("failed to save the execution context of %s %d", t.entity, id), err)
		}
	case count == 0:
		return exception.NewBatchErrorf(op, "no execution context stored for %s %d", t.entity, id, t.notFound)
	default:
		if _, err := d.exec.Update(ctx, d.query(t.updateSQL()), params); err != nil {
			return wrapError(op, fmt.Sprintf("failed to update the execution context of %s %d", t.entity, id), err)
		}
	}
	return nil
}
