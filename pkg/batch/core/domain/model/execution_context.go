package model

import (
	"encoding/json"
	"sort"
	"sync"
)

// ExecutionContext is a key-value store for checkpoint and restart state of a job or step execution.
// It is safe for concurrent use and tracks whether it changed since the last ClearDirtyFlag.
type ExecutionContext struct {
	mu    sync.RWMutex
	data  map[string]interface{}
	dirty bool
}

// NewExecutionContext creates a new empty ExecutionContext.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{data: make(map[string]interface{})}
}

// NewExecutionContextFrom creates an ExecutionContext holding a deep copy of entries.
func NewExecutionContextFrom(entries map[string]interface{}) *ExecutionContext {
	ec := NewExecutionContext()
	for k, v := range entries {
		ec.data[k] = deepCopyValue(v)
	}
	return ec
}

// Put sets a value. A nil value removes the key.
func (ec *ExecutionContext) Put(key string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if value == nil {
		if _, ok := ec.data[key]; ok {
			delete(ec.data, key)
			ec.dirty = true
		}
		return
	}
	ec.data[key] = value
	ec.dirty = true
}

// Get retrieves the value for the specified key.
func (ec *ExecutionContext) Get(key string) (interface{}, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	val, ok := ec.data[key]
	return val, ok
}

// GetString retrieves the value for the specified key as a string.
func (ec *ExecutionContext) GetString(key string) (string, bool) {
	val, ok := ec.Get(key)
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetInt retrieves the value for the specified key as an int.
// Numbers decoded from JSON arrive as float64 and are converted.
func (ec *ExecutionContext) GetInt(key string) (int, bool) {
	val, ok := ec.Get(key)
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// GetInt64 retrieves the value for the specified key as an int64.
func (ec *ExecutionContext) GetInt64(key string) (int64, bool) {
	val, ok := ec.Get(key)
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// GetBool retrieves the value for the specified key as a bool.
func (ec *ExecutionContext) GetBool(key string) (bool, bool) {
	val, ok := ec.Get(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// GetFloat64 retrieves the value for the specified key as a float64.
func (ec *ExecutionContext) GetFloat64(key string) (float64, bool) {
	val, ok := ec.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := val.(float64)
	return f, ok
}

// ContainsKey reports whether key is present.
func (ec *ExecutionContext) ContainsKey(key string) bool {
	_, ok := ec.Get(key)
	return ok
}

// Remove deletes a key and returns the previous value.
func (ec *ExecutionContext) Remove(key string) interface{} {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	val, ok := ec.data[key]
	if ok {
		delete(ec.data, key)
		ec.dirty = true
	}
	return val
}

// Keys returns the keys in sorted order.
func (ec *ExecutionContext) Keys() []string {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	keys := make([]string, 0, len(ec.data))
	for k := range ec.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (ec *ExecutionContext) Len() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.data)
}

// IsEmpty reports whether there are no entries.
func (ec *ExecutionContext) IsEmpty() bool {
	return ec.Len() == 0
}

// IsDirty reports whether the context changed since it was created or last cleared.
func (ec *ExecutionContext) IsDirty() bool {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return ec.dirty
}

// ClearDirtyFlag resets the change tracking, typically after persistence.
func (ec *ExecutionContext) ClearDirtyFlag() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.dirty = false
}

// Entries returns a deep copy of the stored entries.
func (ec *ExecutionContext) Entries() map[string]interface{} {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	out := make(map[string]interface{}, len(ec.data))
	for k, v := range ec.data {
		out[k] = deepCopyValue(v)
	}
	return out
}

// Copy returns a deep copy. Nested maps and slices are duplicated; other values are shared.
func (ec *ExecutionContext) Copy() *ExecutionContext {
	if ec == nil {
		return NewExecutionContext()
	}
	cp := NewExecutionContextFrom(ec.Entries())
	cp.dirty = ec.IsDirty()
	return cp
}

// Equals compares the entries of two contexts by their JSON form.
func (ec *ExecutionContext) Equals(other *ExecutionContext) bool {
	if ec == nil || other == nil {
		return ec == other
	}
	a, errA := json.Marshal(ec.Entries())
	b, errB := json.Marshal(other.Entries())
	return errA == nil && errB == nil && string(a) == string(b)
}

// MarshalJSON implements json.Marshaler.
func (ec *ExecutionContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(ec.Entries())
}

// UnmarshalJSON implements json.Unmarshaler. The result is not dirty.
func (ec *ExecutionContext) UnmarshalJSON(b []byte) error {
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return err
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.data = data
	ec.dirty = false
	return nil
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, inner := range t {
			m[k] = deepCopyValue(inner)
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(t))
		for i, inner := range t {
			s[i] = deepCopyValue(inner)
		}
		return s
	case []string:
		s := make([]string, len(t))
		copy(s, t)
		return s
	case []byte:
		s := make([]byte, len(t))
		copy(s, t)
		return s
	default:
		return v
	}
}
