package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	batchtest "github.com/tigerroll/batchstate/pkg/batch/test"
)

func newFinishedExecution(t *testing.T) (*model.JobExecution, *model.StepExecution) {
	t.Helper()
	ji, err := model.NewJobInstanceWithID(1, "PAYROLL")
	require.NoError(t, err)
	je := model.NewJobExecutionWithID(ji, 10, model.NewJobParameters(), "")
	start := batchtest.Now()
	je.SetStartTime(start)
	batchtest.MarkExecutionAsCompleted(je)
	je.SetEndTime(start.Add(2 * time.Second))

	se, err := model.NewStepExecutionWithID("load", je, 20)
	require.NoError(t, err)
	se.SetStartTime(start)
	se.SetReadCount(7)
	se.SetWriteCount(5)
	se.SetProcessSkipCount(2)
	batchtest.MarkStepAsCompleted(se)
	se.SetEndTime(start.Add(time.Second))
	return je, se
}

func TestPrometheusRecorder_JobAndStep(t *testing.T) {
	r := NewPrometheusRecorder("test")
	ctx := context.Background()
	je, se := newFinishedExecution(t)

	r.RecordJobEnd(ctx, je)
	r.RecordStepEnd(ctx, se)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("PAYROLL", "COMPLETED")))
	assert.Equal(t, 7.0, testutil.ToFloat64(r.stepReadCount.WithLabelValues("PAYROLL", "load")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.stepWriteCount.WithLabelValues("PAYROLL", "load")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.stepSkipCount.WithLabelValues("PAYROLL", "load", "process")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.jobDurationSeconds))
}

func TestPrometheusRecorder_RepositoryOperations(t *testing.T) {
	r := NewPrometheusRecorder("test")
	ctx := context.Background()

	r.RecordRepositoryOperation(ctx, "UpdateStepExecution", time.Millisecond, nil)
	r.RecordRepositoryOperation(ctx, "UpdateStepExecution", time.Millisecond,
		exception.NewOptimisticLockingFailureException("UpdateStepExecution", "StepExecution", 5, 2, 3))
	r.RecordRepositoryOperation(ctx, "GetJobInstance", time.Millisecond, errors.New("boom"))
	r.RecordOptimisticLockFailure(ctx, "StepExecution")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.operationErrors.WithLabelValues("UpdateStepExecution", "optimistic_lock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operationErrors.WithLabelValues("GetJobInstance", "other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.optimisticLockFailed.WithLabelValues("StepExecution")))
	assert.Equal(t, 3, testutil.CollectAndCount(r.operationSeconds))
}

func TestPrometheusRecorder_Handler(t *testing.T) {
	r := NewPrometheusRecorder("test")
	r.RecordDuration(context.Background(), "schema.create", 10*time.Millisecond, map[string]string{"dialect": "sqlite"})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_operation_duration_seconds_count{name="schema.create"} 1`)
}
