package serialization

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

func TestJSONExecutionContextSerializer_RoundTrip(t *testing.T) {
	s := NewJSONExecutionContextSerializer()
	ec := model.NewExecutionContext()
	ec.Put("reader.offset", 42)
	ec.Put("name", "payroll")
	ec.Put("done", true)

	data, err := s.Serialize(ec)
	require.NoError(t, err)

	restored, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.False(t, restored.IsDirty())
	offset, ok := restored.GetInt("reader.offset")
	assert.True(t, ok)
	assert.Equal(t, 42, offset)
	name, _ := restored.GetString("name")
	assert.Equal(t, "payroll", name)
	done, _ := restored.GetBool("done")
	assert.True(t, done)
}

func TestJSONExecutionContextSerializer_UseNumber(t *testing.T) {
	s := &JSONExecutionContextSerializer{UseNumber: true}
	restored, err := s.Deserialize([]byte(`{"big": 9007199254740993}`))
	require.NoError(t, err)
	v, _ := restored.Get("big")
	assert.Equal(t, json.Number("9007199254740993"), v)
}

func TestJSONExecutionContextSerializer_EmptyAndNil(t *testing.T) {
	s := NewJSONExecutionContextSerializer()

	data, err := s.Serialize(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	ec, err := s.Deserialize(nil)
	require.NoError(t, err)
	assert.True(t, ec.IsEmpty())
}

func TestJSONExecutionContextSerializer_FailuresAreIllegalArguments(t *testing.T) {
	s := NewJSONExecutionContextSerializer()

	_, err := s.Deserialize([]byte("not json"))
	assert.True(t, exception.IsIllegalArgument(err))

	ec := model.NewExecutionContext()
	ec.Put("nan", math.NaN())
	_, err = s.Serialize(ec)
	assert.True(t, exception.IsIllegalArgument(err))
	var unsupported *json.UnsupportedValueError
	assert.ErrorAs(t, err, &unsupported)
}
