package model

import (
	"fmt"
	"strconv"
	"time"
)

// ParameterType tags the value held by a JobParameter.
type ParameterType string

const (
	ParameterTypeString ParameterType = "STRING"
	ParameterTypeDate   ParameterType = "DATE"
	ParameterTypeLong   ParameterType = "LONG"
	ParameterTypeDouble ParameterType = "DOUBLE"
)

// ParseParameterType converts a persisted type code.
func ParseParameterType(code string) (ParameterType, error) {
	switch ParameterType(code) {
	case ParameterTypeString, ParameterTypeDate, ParameterTypeLong, ParameterTypeDouble:
		return ParameterType(code), nil
	}
	return "", fmt.Errorf("unknown parameter type %q", code)
}

// JobParameter is an immutable, typed parameter value.
// A nil value is allowed; the type still identifies what kind of value is missing.
type JobParameter struct {
	value       interface{}
	typ         ParameterType
	identifying bool
}

// NewStringParameter creates a STRING parameter.
func NewStringParameter(value string, identifying bool) JobParameter {
	return JobParameter{value: value, typ: ParameterTypeString, identifying: identifying}
}

// NewLongParameter creates a LONG parameter.
func NewLongParameter(value int64, identifying bool) JobParameter {
	return JobParameter{value: value, typ: ParameterTypeLong, identifying: identifying}
}

// NewDoubleParameter creates a DOUBLE parameter.
func NewDoubleParameter(value float64, identifying bool) JobParameter {
	return JobParameter{value: value, typ: ParameterTypeDouble, identifying: identifying}
}

// NewDateParameter creates a DATE parameter. The time is truncated to milliseconds,
// the precision kept by the key generator and by the relational store.
func NewDateParameter(value time.Time, identifying bool) JobParameter {
	return JobParameter{value: value.Truncate(time.Millisecond), typ: ParameterTypeDate, identifying: identifying}
}

// NewNullParameter creates a parameter of the given type without a value.
func NewNullParameter(typ ParameterType, identifying bool) JobParameter {
	return JobParameter{typ: typ, identifying: identifying}
}

// Value returns the raw value: string, int64, float64, time.Time or nil.
func (p JobParameter) Value() interface{} {
	return p.value
}

// Type returns the type tag.
func (p JobParameter) Type() ParameterType {
	return p.typ
}

// IsIdentifying reports whether the parameter participates in job instance identity.
func (p JobParameter) IsIdentifying() bool {
	return p.identifying
}

// IsNull reports whether the parameter has no value.
func (p JobParameter) IsNull() bool {
	return p.value == nil
}

// Equals compares raw values. Null parameters are equal when their types match.
// The identifying flag does not take part in equality.
func (p JobParameter) Equals(other JobParameter) bool {
	if p.value == nil {
		return other.value == nil && p.typ == other.typ
	}
	if d, ok := p.value.(time.Time); ok {
		od, ok := other.value.(time.Time)
		return ok && d.Equal(od)
	}
	return p.value == other.value
}

// String renders the identifying string form used in job keys:
// dates as epoch milliseconds, numbers in their shortest decimal form, null as "".
func (p JobParameter) String() string {
	switch v := p.value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return strconv.FormatInt(v.UnixMilli(), 10)
	default:
		return fmt.Sprint(v)
	}
}
