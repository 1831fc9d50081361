package incrementer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
)

func TestRunIDIncrementer(t *testing.T) {
	inc := NewRunIDIncrementer("")

	first := inc.GetNext(model.NewJobParameters())
	assert.Equal(t, int64(1), first.GetLong(DefaultRunIDKey))

	params := model.NewJobParametersBuilderFrom(first).AddString("date", "2024-01-01").ToJobParameters()
	second := inc.GetNext(params)
	assert.Equal(t, int64(2), second.GetLong(DefaultRunIDKey))
	assert.Equal(t, "2024-01-01", second.GetString("date"))
	assert.Equal(t, []string{DefaultRunIDKey, "date"}, second.Keys())

	p, ok := second.Get(DefaultRunIDKey)
	require.True(t, ok)
	assert.True(t, p.IsIdentifying())
	assert.Equal(t, int64(1), params.GetLong(DefaultRunIDKey), "the input is not modified")
}

func TestRunIDIncrementer_CustomName(t *testing.T) {
	next := NewRunIDIncrementer("attempt").GetNext(model.NewJobParameters())
	assert.Equal(t, int64(1), next.GetLong("attempt"))
	assert.Equal(t, "RunIDIncrementer[name=attempt]", NewRunIDIncrementer("attempt").String())
}

func TestUUIDIncrementer(t *testing.T) {
	inc := NewUUIDIncrementer("")
	base := model.NewJobParametersBuilder().AddLong("batch.size", 100, false).ToJobParameters()

	first := inc.GetNext(base)
	second := inc.GetNext(first)

	assert.Len(t, first.GetString(DefaultRunTokenKey), 36)
	assert.NotEqual(t, first.GetString(DefaultRunTokenKey), second.GetString(DefaultRunTokenKey))
	assert.Equal(t, int64(100), second.GetLong("batch.size"))

	keys := model.NewDefaultJobKeyGenerator()
	assert.NotEqual(t, keys.GenerateKey(first), keys.GenerateKey(second), "every call yields a new instance key")
}
