package sql

import (
	"fmt"
	"time"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// Column lists shared by the queries and the row mappers below. The order must match the Scan calls.
const (
	jobInstanceColumns = "I.JOB_INSTANCE_ID, I.JOB_NAME, I.VERSION"

	jobExecutionColumns = "E.JOB_EXECUTION_ID, E.START_TIME, E.END_TIME, E.STATUS, E.EXIT_CODE, E.EXIT_MESSAGE, " +
		"E.CREATE_TIME, E.LAST_UPDATED, E.VERSION, E.JOB_CONFIGURATION_LOCATION, " + jobInstanceColumns

	stepExecutionColumns = "STEP_EXECUTION_ID, STEP_NAME, START_TIME, END_TIME, STATUS, COMMIT_COUNT, READ_COUNT, " +
		"FILTER_COUNT, WRITE_COUNT, EXIT_CODE, EXIT_MESSAGE, READ_SKIP_COUNT, WRITE_SKIP_COUNT, PROCESS_SKIP_COUNT, " +
		"ROLLBACK_COUNT, LAST_UPDATED, VERSION"

	paramColumns = "JOB_EXECUTION_ID, KEY_NAME, TYPE_CD, STRING_VAL, DATE_VAL, LONG_VAL, DOUBLE_VAL, IDENTIFYING"
)

// JobInstanceEntity is the row form of a JobInstance.
type JobInstanceEntity struct {
	ID      int64
	JobName string
	Version *int64
}

func scanJobInstance(row database.RowScanner) (*JobInstanceEntity, error) {
	e := &JobInstanceEntity{}
	return e, row.Scan(&e.ID, &e.JobName, &e.Version)
}

func toDomainJobInstance(entity *JobInstanceEntity) (*model.JobInstance, error) {
	ji, err := model.NewJobInstanceWithID(entity.ID, entity.JobName)
	if err != nil {
		return nil, err
	}
	ji.SetVersion(versionOf(entity.Version))
	return ji, nil
}

// JobExecutionEntity is the row form of a JobExecution joined with its JobInstance.
type JobExecutionEntity struct {
	ID                       int64
	StartTime                *time.Time
	EndTime                  *time.Time
	Status                   *string
	ExitCode                 *string
	ExitMessage              *string
	CreateTime               *time.Time
	LastUpdated              *time.Time
	Version                  *int64
	JobConfigurationLocation *string
	Instance                 JobInstanceEntity
}

func scanJobExecution(row database.RowScanner) (*JobExecutionEntity, error) {
	e := &JobExecutionEntity{}
	err := row.Scan(&e.ID, &e.StartTime, &e.EndTime, &e.Status, &e.ExitCode, &e.ExitMessage,
		&e.CreateTime, &e.LastUpdated, &e.Version, &e.JobConfigurationLocation,
		&e.Instance.ID, &e.Instance.JobName, &e.Instance.Version)
	return e, err
}

// toDomainJobExecution rebuilds the execution. Parameters are attached by the caller.
func toDomainJobExecution(entity *JobExecutionEntity) (*model.JobExecution, error) {
	ji, err := toDomainJobInstance(&entity.Instance)
	if err != nil {
		return nil, err
	}
	status, err := parseStatus(entity.Status)
	if err != nil {
		return nil, err
	}
	je := model.NewJobExecutionWithID(ji, entity.ID, model.NewJobParameters(), stringOf(entity.JobConfigurationLocation))
	je.SetStatus(status)
	je.SetExitStatus(model.NewExitStatusWithDescription(exitCodeOf(entity.ExitCode), stringOf(entity.ExitMessage)))
	if entity.CreateTime != nil {
		je.SetCreateTime(*entity.CreateTime)
	}
	if entity.StartTime != nil {
		je.SetStartTime(*entity.StartTime)
	}
	if entity.EndTime != nil {
		je.SetEndTime(*entity.EndTime)
	}
	if entity.LastUpdated != nil {
		je.SetLastUpdated(*entity.LastUpdated)
	}
	je.SetVersion(versionOf(entity.Version))
	return je, nil
}

// StepExecutionEntity is the row form of a StepExecution.
type StepExecutionEntity struct {
	ID               int64
	StepName         string
	StartTime        *time.Time
	EndTime          *time.Time
	Status           *string
	CommitCount      *int64
	ReadCount        *int64
	FilterCount      *int64
	WriteCount       *int64
	ExitCode         *string
	ExitMessage      *string
	ReadSkipCount    *int64
	WriteSkipCount   *int64
	ProcessSkipCount *int64
	RollbackCount    *int64
	LastUpdated      *time.Time
	Version          *int64
}

func scanStepExecution(row database.RowScanner) (*StepExecutionEntity, error) {
	e := &StepExecutionEntity{}
	err := row.Scan(&e.ID, &e.StepName, &e.StartTime, &e.EndTime, &e.Status, &e.CommitCount, &e.ReadCount,
		&e.FilterCount, &e.WriteCount, &e.ExitCode, &e.ExitMessage, &e.ReadSkipCount, &e.WriteSkipCount,
		&e.ProcessSkipCount, &e.RollbackCount, &e.LastUpdated, &e.Version)
	return e, err
}

// toDomainStepExecution rebuilds the step execution bound to jobExecution. It is not added to it.
func toDomainStepExecution(entity *StepExecutionEntity, jobExecution *model.JobExecution) (*model.StepExecution, error) {
	se, err := model.NewStepExecutionWithID(entity.StepName, jobExecution, entity.ID)
	if err != nil {
		return nil, err
	}
	status, err := parseStatus(entity.Status)
	if err != nil {
		return nil, err
	}
	se.Restore(model.StepExecutionState{
		Status:           status,
		ExitStatus:       model.NewExitStatusWithDescription(exitCodeOf(entity.ExitCode), stringOf(entity.ExitMessage)),
		ReadCount:        intOf(entity.ReadCount),
		WriteCount:       intOf(entity.WriteCount),
		CommitCount:      intOf(entity.CommitCount),
		RollbackCount:    intOf(entity.RollbackCount),
		ReadSkipCount:    intOf(entity.ReadSkipCount),
		ProcessSkipCount: intOf(entity.ProcessSkipCount),
		WriteSkipCount:   intOf(entity.WriteSkipCount),
		FilterCount:      intOf(entity.FilterCount),
		StartTime:        entity.StartTime,
		EndTime:          entity.EndTime,
		LastUpdated:      entity.LastUpdated,
	})
	se.SetVersion(versionOf(entity.Version))
	return se, nil
}

// JobParameterEntity is one row of the parameters side table.
type JobParameterEntity struct {
	JobExecutionID int64
	KeyName        string
	TypeCd         string
	StringVal      *string
	DateVal        *time.Time
	LongVal        *int64
	DoubleVal      *float64
	Identifying    string
}

func scanJobParameter(row database.RowScanner) (*JobParameterEntity, error) {
	e := &JobParameterEntity{}
	err := row.Scan(&e.JobExecutionID, &e.KeyName, &e.TypeCd, &e.StringVal, &e.DateVal, &e.LongVal, &e.DoubleVal, &e.Identifying)
	return e, err
}

// fromDomainJobParameter fills the column matching the type of param and leaves the others NULL.
func fromDomainJobParameter(jobExecutionID int64, key string, param model.JobParameter) map[string]interface{} {
	row := map[string]interface{}{
		"jobExecutionId": jobExecutionID,
		"keyName":        key,
		"typeCd":         string(param.Type()),
		"stringVal":      nil,
		"dateVal":        nil,
		"longVal":        nil,
		"doubleVal":      nil,
		"identifying":    "N",
	}
	if param.IsIdentifying() {
		row["identifying"] = "Y"
	}
	switch v := param.Value().(type) {
	case string:
		row["stringVal"] = v
	case time.Time:
		row["dateVal"] = v
	case int64:
		row["longVal"] = v
	case float64:
		row["doubleVal"] = v
	}
	return row
}

func toDomainJobParameter(entity *JobParameterEntity) (model.JobParameter, error) {
	typ, err := model.ParseParameterType(entity.TypeCd)
	if err != nil {
		return model.JobParameter{}, err
	}
	identifying := entity.Identifying == "Y"
	switch {
	case typ == model.ParameterTypeString && entity.StringVal != nil:
		return model.NewStringParameter(*entity.StringVal, identifying), nil
	case typ == model.ParameterTypeDate && entity.DateVal != nil:
		return model.NewDateParameter(*entity.DateVal, identifying), nil
	case typ == model.ParameterTypeLong && entity.LongVal != nil:
		return model.NewLongParameter(*entity.LongVal, identifying), nil
	case typ == model.ParameterTypeDouble && entity.DoubleVal != nil:
		return model.NewDoubleParameter(*entity.DoubleVal, identifying), nil
	}
	return model.NewNullParameter(typ, identifying), nil
}

func parseStatus(label *string) (model.BatchStatus, error) {
	if label == nil {
		return model.BatchStatusUnknown, nil
	}
	status, err := model.ParseBatchStatus(*label)
	if err != nil {
		return model.BatchStatusUnknown, fmt.Errorf("corrupt status column: %w", err)
	}
	return status, nil
}

func exitCodeOf(code *string) string {
	if code == nil {
		return model.ExitCodeUnknown
	}
	return *code
}

func stringOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOf(n *int64) int {
	if n == nil {
		return 0
	}
	return int(*n)
}

func versionOf(v *int64) int {
	if v == nil {
		return 0
	}
	return int(*v)
}

// nullableTime turns an unset time into a NULL parameter.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
