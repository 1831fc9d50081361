package metrics

import (
	"context"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of repository work.
// Every Start method returns a context carrying the new span and a function ending it,
// which is meant to be deferred.
type Tracer interface {
	// StartJobSpan starts a span for work on a JobExecution.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())

	// StartStepSpan starts a span for work on a StepExecution.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())

	// StartOperationSpan starts a span for one repository call.
	//
	// attributes: Values attached to the span, e.g. `{"job.name": "payroll"}`.
	StartOperationSpan(ctx context.Context, operation string, attributes map[string]interface{}) (context.Context, func())

	// RecordError records an error on the current span.
	//
	// module: The component reporting it, usually the operation name.
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event on the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
