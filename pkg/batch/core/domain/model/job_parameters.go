package model

import (
	"strings"
	"time"
)

// JobParameters is an ordered, immutable set of named JobParameter values.
// Insertion order is kept for rendering and persistence; equality ignores it.
// The zero value is an empty parameter set.
type JobParameters struct {
	keys   []string
	params map[string]JobParameter
}

// NewJobParameters returns an empty parameter set.
func NewJobParameters() JobParameters {
	return JobParameters{}
}

// Keys returns the parameter names in insertion order.
func (p JobParameters) Keys() []string {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

// Len returns the number of parameters.
func (p JobParameters) Len() int {
	return len(p.keys)
}

// IsEmpty reports whether there are no parameters.
func (p JobParameters) IsEmpty() bool {
	return len(p.keys) == 0
}

// Get returns the named parameter.
func (p JobParameters) Get(key string) (JobParameter, bool) {
	param, ok := p.params[key]
	return param, ok
}

// GetString returns the value of a STRING parameter, or "" when absent or of another type.
func (p JobParameters) GetString(key string) string {
	if v, ok := p.params[key].value.(string); ok {
		return v
	}
	return ""
}

// GetLong returns the value of a LONG parameter, or 0 when absent or of another type.
func (p JobParameters) GetLong(key string) int64 {
	if v, ok := p.params[key].value.(int64); ok {
		return v
	}
	return 0
}

// GetDouble returns the value of a DOUBLE parameter, or 0 when absent or of another type.
func (p JobParameters) GetDouble(key string) float64 {
	if v, ok := p.params[key].value.(float64); ok {
		return v
	}
	return 0
}

// GetDate returns the value of a DATE parameter, or nil when absent or of another type.
func (p JobParameters) GetDate(key string) *time.Time {
	if v, ok := p.params[key].value.(time.Time); ok {
		return &v
	}
	return nil
}

// Parameters returns a copy of the parameter map.
func (p JobParameters) Parameters() map[string]JobParameter {
	out := make(map[string]JobParameter, len(p.params))
	for k, v := range p.params {
		out[k] = v
	}
	return out
}

// Equals reports whether both sets hold the same keys with equal values, in any order.
func (p JobParameters) Equals(other JobParameters) bool {
	if len(p.params) != len(other.params) {
		return false
	}
	for k, v := range p.params {
		ov, ok := other.params[k]
		if !ok || !v.Equals(ov) {
			return false
		}
	}
	return true
}

// String renders the parameters in insertion order, e.g. "{date=2024-01-01, run.id=3}".
func (p JobParameters) String() string {
	return p.render(nil)
}

// MaskedString renders like String but replaces the values of the given keys.
func (p JobParameters) MaskedString(maskedKeys []string) string {
	masked := make(map[string]bool, len(maskedKeys))
	for _, k := range maskedKeys {
		masked[k] = true
	}
	return p.render(masked)
}

func (p JobParameters) render(masked map[string]bool) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		if masked[k] {
			b.WriteString("********")
		} else {
			b.WriteString(p.params[k].String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

// JobParametersBuilder assembles a JobParameters value.
// Parameters are identifying unless stated otherwise. Re-adding a key replaces its value but keeps its position.
type JobParametersBuilder struct {
	keys   []string
	params map[string]JobParameter
}

// NewJobParametersBuilder creates an empty builder.
func NewJobParametersBuilder() *JobParametersBuilder {
	return &JobParametersBuilder{params: make(map[string]JobParameter)}
}

// NewJobParametersBuilderFrom creates a builder seeded with existing parameters.
func NewJobParametersBuilderFrom(params JobParameters) *JobParametersBuilder {
	b := NewJobParametersBuilder()
	for _, k := range params.keys {
		b.AddParameter(k, params.params[k])
	}
	return b
}

// AddParameter adds an already constructed parameter.
func (b *JobParametersBuilder) AddParameter(key string, param JobParameter) *JobParametersBuilder {
	if _, exists := b.params[key]; !exists {
		b.keys = append(b.keys, key)
	}
	b.params[key] = param
	return b
}

// AddString adds a STRING parameter. identifying defaults to true.
func (b *JobParametersBuilder) AddString(key, value string, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewStringParameter(value, isIdentifying(identifying)))
}

// AddLong adds a LONG parameter. identifying defaults to true.
func (b *JobParametersBuilder) AddLong(key string, value int64, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewLongParameter(value, isIdentifying(identifying)))
}

// AddDouble adds a DOUBLE parameter. identifying defaults to true.
func (b *JobParametersBuilder) AddDouble(key string, value float64, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewDoubleParameter(value, isIdentifying(identifying)))
}

// AddDate adds a DATE parameter. identifying defaults to true.
func (b *JobParametersBuilder) AddDate(key string, value time.Time, identifying ...bool) *JobParametersBuilder {
	return b.AddParameter(key, NewDateParameter(value, isIdentifying(identifying)))
}

// ToJobParameters returns the immutable parameter set.
func (b *JobParametersBuilder) ToJobParameters() JobParameters {
	keys := make([]string, len(b.keys))
	copy(keys, b.keys)
	params := make(map[string]JobParameter, len(b.params))
	for k, v := range b.params {
		params[k] = v
	}
	return JobParameters{keys: keys, params: params}
}

func isIdentifying(flags []bool) bool {
	if len(flags) == 0 {
		return true
	}
	return flags[0]
}
