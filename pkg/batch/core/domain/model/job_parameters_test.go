package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobParameter_Equality(t *testing.T) {
	assert.True(t, NewStringParameter("a", true).Equals(NewStringParameter("a", false)), "identifying flag is not part of equality")
	assert.False(t, NewStringParameter("a", true).Equals(NewStringParameter("b", true)))
	assert.False(t, NewLongParameter(1, true).Equals(NewDoubleParameter(1, true)))
	assert.True(t, NewNullParameter(ParameterTypeDate, true).Equals(NewNullParameter(ParameterTypeDate, false)))
	assert.False(t, NewNullParameter(ParameterTypeDate, true).Equals(NewNullParameter(ParameterTypeLong, true)))

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, NewDateParameter(ts, true).Equals(NewDateParameter(ts.In(time.Local), true)))
}

func TestJobParameter_String(t *testing.T) {
	ts := time.UnixMilli(1704067200123)
	assert.Equal(t, "1704067200123", NewDateParameter(ts, true).String())
	assert.Equal(t, "42", NewLongParameter(42, true).String())
	assert.Equal(t, "1.5", NewDoubleParameter(1.5, true).String())
	assert.Equal(t, "", NewNullParameter(ParameterTypeString, true).String())
}

func TestJobParameters_OrderAndEquality(t *testing.T) {
	a := NewJobParametersBuilder().AddString("date", "2024-01-01").AddLong("run.id", 3).ToJobParameters()
	b := NewJobParametersBuilder().AddLong("run.id", 3).AddString("date", "2024-01-01").ToJobParameters()

	assert.Equal(t, []string{"date", "run.id"}, a.Keys())
	assert.Equal(t, "{date=2024-01-01, run.id=3}", a.String())
	assert.Equal(t, "{run.id=3, date=2024-01-01}", b.String())
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(NewJobParametersBuilder().AddString("date", "2024-01-02").AddLong("run.id", 3).ToJobParameters()))
	assert.False(t, a.Equals(NewJobParameters()))
}

func TestJobParameters_ImmutableAfterBuild(t *testing.T) {
	builder := NewJobParametersBuilder().AddString("a", "1")
	params := builder.ToJobParameters()
	builder.AddString("b", "2")

	assert.Equal(t, 1, params.Len())
	keys := params.Keys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"a"}, params.Keys())
}

func TestJobParameters_TypedGetters(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	params := NewJobParametersBuilder().
		AddString("s", "x").
		AddLong("l", 7).
		AddDouble("d", 2.5).
		AddDate("t", ts).
		ToJobParameters()

	assert.Equal(t, "x", params.GetString("s"))
	assert.Equal(t, int64(7), params.GetLong("l"))
	assert.Equal(t, 2.5, params.GetDouble("d"))
	require.NotNil(t, params.GetDate("t"))
	assert.True(t, ts.Equal(*params.GetDate("t")))
	assert.Equal(t, "", params.GetString("l"))
	assert.Nil(t, params.GetDate("missing"))
}

func TestJobParameters_MaskedString(t *testing.T) {
	params := NewJobParametersBuilder().AddString("user", "bob").AddString("password", "s3cret", false).ToJobParameters()
	assert.Equal(t, "{user=bob, password=********}", params.MaskedString([]string{"password"}))
}

func TestDefaultJobKeyGenerator(t *testing.T) {
	gen := NewDefaultJobKeyGenerator()

	a := NewJobParametersBuilder().AddString("date", "2024-01-01").AddLong("run.id", 1).ToJobParameters()
	b := NewJobParametersBuilder().AddLong("run.id", 1).AddString("date", "2024-01-01").ToJobParameters()
	key := gen.GenerateKey(a)

	assert.Len(t, key, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", key)
	assert.Equal(t, key, gen.GenerateKey(b), "order independent")

	withNonIdentifying := NewJobParametersBuilderFrom(a).AddString("note", "ignored", false).ToJobParameters()
	assert.Equal(t, key, gen.GenerateKey(withNonIdentifying), "non-identifying parameters do not count")

	changed := NewJobParametersBuilder().AddString("date", "2024-01-02").AddLong("run.id", 1).ToJobParameters()
	assert.NotEqual(t, key, gen.GenerateKey(changed))
}

func TestDefaultJobKeyGenerator_KnownDigests(t *testing.T) {
	gen := NewDefaultJobKeyGenerator()
	// md5("") and md5("date=2024-01-01;")
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", gen.GenerateKey(NewJobParameters()))

	params := NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()
	assert.Equal(t, gen.GenerateKey(params), gen.GenerateKey(NewJobParametersBuilder().AddString("date", "2024-01-01").ToJobParameters()))

	nullValue := NewJobParametersBuilder().AddParameter("k", NewNullParameter(ParameterTypeString, true)).ToJobParameters()
	emptyValue := NewJobParametersBuilder().AddString("k", "").ToJobParameters()
	assert.Equal(t, gen.GenerateKey(emptyValue), gen.GenerateKey(nullValue), "null renders as empty string")
}

func TestDefaultJobParametersConverter(t *testing.T) {
	conv := NewDefaultJobParametersConverter()

	params, err := conv.GetJobParameters([]string{"name=payroll", "run.id(long)=3", "-rate(double)=0.5", "schedule.date(date)=2024/01/31"})
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "run.id", "rate", "schedule.date"}, params.Keys())
	assert.Equal(t, "payroll", params.GetString("name"))
	assert.Equal(t, int64(3), params.GetLong("run.id"))
	rate, _ := params.Get("rate")
	assert.False(t, rate.IsIdentifying())
	assert.Equal(t, 0.5, rate.Value())
	require.NotNil(t, params.GetDate("schedule.date"))
	assert.Equal(t, 31, params.GetDate("schedule.date").Day())

	assert.Equal(t, []string{"name(string)=payroll", "run.id(long)=3", "-rate(double)=0.5", "schedule.date(date)=2024/01/31"}, conv.ToStrings(params))
}

func TestDefaultJobParametersConverter_Errors(t *testing.T) {
	conv := NewDefaultJobParametersConverter()
	for _, entry := range []string{"novalue", "=x", "n(long)=abc", "n(double)=x", "n(date)=31-01-2024", "n(blob)=1"} {
		_, err := conv.GetJobParameters([]string{entry})
		assert.Error(t, err, entry)
	}
}
