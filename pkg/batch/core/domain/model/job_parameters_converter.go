package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultDateLayout is the layout used for DATE parameters in their textual form.
const DefaultDateLayout = "2006/01/02"

// DefaultJobParametersConverter converts between JobParameters and "key(type)=value" strings.
// The type suffix is one of string, long, double or date and defaults to string.
// A leading "-" on the key marks the parameter as non-identifying.
type DefaultJobParametersConverter struct {
	DateLayout string
}

// NewDefaultJobParametersConverter creates a converter using DefaultDateLayout.
func NewDefaultJobParametersConverter() *DefaultJobParametersConverter {
	return &DefaultJobParametersConverter{DateLayout: DefaultDateLayout}
}

// GetJobParameters parses the given "key(type)=value" entries in order.
func (c *DefaultJobParametersConverter) GetJobParameters(entries []string) (JobParameters, error) {
	b := NewJobParametersBuilder()
	for _, entry := range entries {
		eq := strings.Index(entry, "=")
		if eq <= 0 {
			return JobParameters{}, fmt.Errorf("invalid job parameter %q: expected key=value", entry)
		}
		rawKey, rawValue := entry[:eq], entry[eq+1:]

		identifying := true
		if strings.HasPrefix(rawKey, "-") {
			identifying = false
			rawKey = rawKey[1:]
		}

		key, typ := rawKey, "string"
		if open := strings.Index(rawKey, "("); open > 0 && strings.HasSuffix(rawKey, ")") {
			key = rawKey[:open]
			typ = strings.ToLower(rawKey[open+1 : len(rawKey)-1])
		}

		switch typ {
		case "string":
			b.AddString(key, rawValue, identifying)
		case "long":
			v, err := strconv.ParseInt(rawValue, 10, 64)
			if err != nil {
				return JobParameters{}, fmt.Errorf("invalid long value for %s: %w", key, err)
			}
			b.AddLong(key, v, identifying)
		case "double":
			v, err := strconv.ParseFloat(rawValue, 64)
			if err != nil {
				return JobParameters{}, fmt.Errorf("invalid double value for %s: %w", key, err)
			}
			b.AddDouble(key, v, identifying)
		case "date":
			v, err := time.ParseInLocation(c.layout(), rawValue, time.Local)
			if err != nil {
				return JobParameters{}, fmt.Errorf("invalid date value for %s: %w", key, err)
			}
			b.AddDate(key, v, identifying)
		default:
			return JobParameters{}, fmt.Errorf("unknown parameter type %q for %s", typ, key)
		}
	}
	return b.ToJobParameters(), nil
}

// ToStrings renders parameters back into "key(type)=value" entries, in insertion order.
func (c *DefaultJobParametersConverter) ToStrings(params JobParameters) []string {
	out := make([]string, 0, params.Len())
	for _, k := range params.keys {
		p := params.params[k]
		prefix := ""
		if !p.IsIdentifying() {
			prefix = "-"
		}
		value := p.String()
		if d, ok := p.value.(time.Time); ok {
			value = d.In(time.Local).Format(c.layout())
		}
		out = append(out, fmt.Sprintf("%s%s(%s)=%s", prefix, k, strings.ToLower(string(p.typ)), value))
	}
	return out
}

func (c *DefaultJobParametersConverter) layout() string {
	if c.DateLayout == "" {
		return DefaultDateLayout
	}
	return c.DateLayout
}
