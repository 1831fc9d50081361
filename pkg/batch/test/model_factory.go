package test

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// NewTestJobParameters creates identifying JobParameters from plain Go values.
// Supported value types are string, int, int64, float64 and time.Time.
func NewTestJobParameters(params map[string]interface{}) model.JobParameters {
	b := model.NewJobParametersBuilder()
	for k, v := range params {
		switch val := v.(type) {
		case string:
			b.AddString(k, val)
		case int:
			b.AddLong(k, int64(val))
		case int64:
			b.AddLong(k, val)
		case float64:
			b.AddDouble(k, val)
		case time.Time:
			b.AddDate(k, val)
		default:
			panic(fmt.Sprintf("unsupported test parameter type %T for key %s", v, k))
		}
	}
	return b.ToJobParameters()
}

// NewUniqueJobParameters returns parameters that identify a fresh job instance on every call.
func NewUniqueJobParameters() model.JobParameters {
	return model.NewJobParametersBuilder().AddString("run.uuid", uuid.NewString()).ToJobParameters()
}

// NewTestJobExecution creates an unsaved JobExecution of jobInstance.
func NewTestJobExecution(jobInstance *model.JobInstance, params model.JobParameters) *model.JobExecution {
	return model.NewJobExecution(jobInstance, params, "")
}

// NewTestStepExecution creates an unsaved StepExecution of jobExecution. It panics on an empty name.
func NewTestStepExecution(jobExecution *model.JobExecution, stepName string) *model.StepExecution {
	se, err := model.NewStepExecution(stepName, jobExecution)
	if err != nil {
		panic(err)
	}
	return se
}

// MarkExecutionAsCompleted ends je successfully.
func MarkExecutionAsCompleted(je *model.JobExecution) {
	je.SetStatus(model.BatchStatusCompleted)
	je.SetExitStatus(model.NewExitStatus(model.ExitCodeCompleted))
	je.SetEndTime(Now())
}

// MarkExecutionAsFailed ends je with err recorded in the exit description.
func MarkExecutionAsFailed(je *model.JobExecution, err error) {
	je.SetStatus(model.BatchStatusFailed)
	je.SetExitStatus(model.NewExitStatus(model.ExitCodeFailed).AddExitDescriptionError(err))
	je.AddFailureException(err)
	je.SetEndTime(Now())
}

// MarkStepAsCompleted ends se successfully.
func MarkStepAsCompleted(se *model.StepExecution) {
	se.SetStatus(model.BatchStatusCompleted)
	se.SetExitStatus(model.NewExitStatus(model.ExitCodeCompleted))
	se.SetEndTime(Now())
}

// NewTestExecutionContext creates an ExecutionContext holding data.
func NewTestExecutionContext(data map[string]interface{}) *model.ExecutionContext {
	ec := model.NewExecutionContext()
	for k, v := range data {
		ec.Put(k, v)
	}
	return ec
}

// Now returns the current time in UTC at millisecond precision, which every backend round-trips exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewTimePtr returns a pointer to t.
func NewTimePtr(t time.Time) *time.Time {
	return &t
}
