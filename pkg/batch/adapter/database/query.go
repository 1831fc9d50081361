package database

import (
	"context"
	"strings"
)

// RowMapper converts the current row into a value.
type RowMapper[T any] func(row RowScanner) (T, error)

// QueryForList runs query and maps every row.
func QueryForList[T any](ctx context.Context, exec QueryExecutor, query string, params map[string]interface{}, mapper RowMapper[T]) ([]T, error) {
	var out []T
	err := exec.Query(ctx, query, params, func(row RowScanner) error {
		v, err := mapper(row)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QueryForObject runs query and maps the first row. found is false when the result is empty.
func QueryForObject[T any](ctx context.Context, exec QueryExecutor, query string, params map[string]interface{}, mapper RowMapper[T]) (value T, found bool, err error) {
	err = exec.Query(ctx, query, params, func(row RowScanner) error {
		if found {
			return nil
		}
		v, mapErr := mapper(row)
		if mapErr != nil {
			return mapErr
		}
		value, found = v, true
		return nil
	})
	return value, found, err
}

// QueryForInt64 runs a single column query such as a COUNT or a version lookup.
// An empty result or a NULL yields 0 and found=false.
func QueryForInt64(ctx context.Context, exec QueryExecutor, query string, params map[string]interface{}) (value int64, found bool, err error) {
	var n *int64
	n, found, err = QueryForObject(ctx, exec, query, params, func(row RowScanner) (*int64, error) {
		var v *int64
		return v, row.Scan(&v)
	})
	if err != nil || !found || n == nil {
		return 0, false, err
	}
	return *n, true, nil
}

// QueryForStrings runs a single column query and collects the values.
func QueryForStrings(ctx context.Context, exec QueryExecutor, query string, params map[string]interface{}) ([]string, error) {
	return QueryForList(ctx, exec, query, params, func(row RowScanner) (string, error) {
		var s string
		return s, row.Scan(&s)
	})
}

// PrefixReplacer substitutes the table prefix into queries written with a %PREFIX% placeholder.
type PrefixReplacer struct {
	prefix string
}

// NewPrefixReplacer creates a PrefixReplacer for prefix (e.g. "BATCH_").
func NewPrefixReplacer(prefix string) PrefixReplacer {
	return PrefixReplacer{prefix: prefix}
}

// Prefix returns the configured prefix.
func (r PrefixReplacer) Prefix() string { return r.prefix }

// Apply returns query with every %PREFIX% replaced.
func (r PrefixReplacer) Apply(query string) string {
	return strings.ReplaceAll(query, "%PREFIX%", r.prefix)
}
