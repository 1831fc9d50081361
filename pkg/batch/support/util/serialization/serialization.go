// Package serialization converts execution contexts to and from the opaque blob stored by the DAOs.
package serialization

import (
	"bytes"
	"encoding/json"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// ExecutionContextSerializer turns an ExecutionContext into bytes and back.
type ExecutionContextSerializer interface {
	Serialize(ec *model.ExecutionContext) ([]byte, error)
	Deserialize(data []byte) (*model.ExecutionContext, error)
}

// JSONExecutionContextSerializer stores contexts as JSON objects.
// Numbers come back as float64 unless UseNumber is set, in which case they come back as json.Number.
type JSONExecutionContextSerializer struct {
	UseNumber bool
}

// NewJSONExecutionContextSerializer creates the default serializer.
func NewJSONExecutionContextSerializer() *JSONExecutionContextSerializer {
	return &JSONExecutionContextSerializer{}
}

// Serialize implements ExecutionContextSerializer. A nil context is stored as "{}".
func (s *JSONExecutionContextSerializer) Serialize(ec *model.ExecutionContext) ([]byte, error) {
	const op = "JSONExecutionContextSerializer.Serialize"

	if ec == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		logger.Errorf("Failed to serialize ExecutionContext: %v", err)
		return nil, exception.NewIllegalArgumentError(op, "could not serialize the execution context", err)
	}
	return data, nil
}

// Deserialize implements ExecutionContextSerializer. Empty input yields an empty context.
func (s *JSONExecutionContextSerializer) Deserialize(data []byte) (*model.ExecutionContext, error) {
	const op = "JSONExecutionContextSerializer.Deserialize"

	if len(bytes.TrimSpace(data)) == 0 {
		return model.NewExecutionContext(), nil
	}

	var entries map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	if s.UseNumber {
		dec.UseNumber()
	}
	if err := dec.Decode(&entries); err != nil {
		logger.Errorf("Failed to deserialize ExecutionContext: %v", err)
		return nil, exception.NewIllegalArgumentError(op, "could not deserialize the execution context", err)
	}

	ec := model.NewExecutionContextFrom(entries)
	ec.ClearDirtyFlag()
	return ec, nil
}
