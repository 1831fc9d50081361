package logger

import (
	"bytes"
	"errors"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/fx/fxevent"
)

func TestShortFunctionName(t *testing.T) {
	assert.Equal(t, "metrics.NewTracer", shortFunctionName("github.com/tigerroll/batchstate/pkg/batch/infrastructure/metrics.NewTracer.func1"))
	assert.Equal(t, "usecase.NewJobRepository", shortFunctionName("github.com/tigerroll/batchstate/pkg/batch/core/application/usecase.NewJobRepository"))
	assert.Equal(t, "main", shortFunctionName("main"))
}

func TestFxLoggerAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		SetLogLevel("INFO")
	})
	SetLogLevel("INFO")
	adapter := NewFxLoggerAdapter()

	adapter.LogEvent(&fxevent.Provided{ConstructorName: "x/sql.NewDaoFactory", OutputTypeNames: []string{"*sql.DaoFactory"}})
	adapter.LogEvent(&fxevent.OnStopExecuted{FunctionName: "x/metrics.NewTracer.func1", Err: errors.New("flush timeout")})
	adapter.LogEvent(&fxevent.Invoked{FunctionName: "main.run", Err: errors.New("no metadata connection")})

	out := buf.String()
	assert.NotContains(t, out, "DaoFactory", "wiring details are DEBUG")
	assert.Contains(t, out, "[ERROR] fx: OnStop hook metrics.NewTracer failed: flush timeout")
	assert.Contains(t, out, "[ERROR] fx: invoke of main.run failed: no metadata connection")
}
