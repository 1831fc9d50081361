package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// BatchStatus is the run state of a job or step execution.
// The numeric value is the rank used for severity comparisons: higher is worse.
type BatchStatus int

const (
	BatchStatusCompleted BatchStatus = iota
	BatchStatusStarting
	BatchStatusStarted
	BatchStatusStopping
	BatchStatusStopped
	BatchStatusFailed
	BatchStatusAbandoned
	BatchStatusUnknown
)

// batchStatuses lists every status in rank order. Match depends on this order.
var batchStatuses = []BatchStatus{
	BatchStatusCompleted,
	BatchStatusStarting,
	BatchStatusStarted,
	BatchStatusStopping,
	BatchStatusStopped,
	BatchStatusFailed,
	BatchStatusAbandoned,
	BatchStatusUnknown,
}

var batchStatusLabels = [...]string{
	"COMPLETED",
	"STARTING",
	"STARTED",
	"STOPPING",
	"STOPPED",
	"FAILED",
	"ABANDONED",
	"UNKNOWN",
}

// String returns the persisted label of the status.
func (s BatchStatus) String() string {
	if s < BatchStatusCompleted || s > BatchStatusUnknown {
		return fmt.Sprintf("BatchStatus(%d)", int(s))
	}
	return batchStatusLabels[s]
}

// Rank returns the severity rank (0..7).
func (s BatchStatus) Rank() int {
	return int(s)
}

// IsRunning reports whether the status is Starting or Started.
func (s BatchStatus) IsRunning() bool {
	return s == BatchStatusStarting || s == BatchStatusStarted
}

// IsUnsuccessful reports whether the status is Failed or worse.
func (s BatchStatus) IsUnsuccessful() bool {
	return s == BatchStatusFailed || s.IsGreaterThan(BatchStatusFailed)
}

// IsGreaterThan reports whether s is strictly more severe than other.
func (s BatchStatus) IsGreaterThan(other BatchStatus) bool {
	return s > other
}

// IsLessThan reports whether s is strictly less severe than other.
func (s BatchStatus) IsLessThan(other BatchStatus) bool {
	return s < other
}

// IsLessThanOrEqualTo reports whether s is at most as severe as other.
func (s BatchStatus) IsLessThanOrEqualTo(other BatchStatus) bool {
	return s <= other
}

// UpgradeTo combines two statuses without ever downgrading a finished one.
// When either status is beyond Started the more severe one wins. Otherwise
// Completed wins over Starting and Started.
func (s BatchStatus) UpgradeTo(other BatchStatus) BatchStatus {
	if s.IsGreaterThan(BatchStatusStarted) || other.IsGreaterThan(BatchStatusStarted) {
		return MaxBatchStatus(s, other)
	}
	if s == BatchStatusCompleted || other == BatchStatusCompleted {
		return BatchStatusCompleted
	}
	return MaxBatchStatus(s, other)
}

// MaxBatchStatus returns the more severe of the two statuses.
func MaxBatchStatus(a, b BatchStatus) BatchStatus {
	if a.IsGreaterThan(b) {
		return a
	}
	return b
}

// MatchBatchStatus returns the first status (in rank order) whose label is a prefix of value.
// Unmatched input yields Completed; callers rely on that default.
func MatchBatchStatus(value string) BatchStatus {
	for _, status := range batchStatuses {
		if strings.HasPrefix(value, status.String()) {
			return status
		}
	}
	return BatchStatusCompleted
}

// ParseBatchStatus converts a persisted label back into a BatchStatus.
// Unlike MatchBatchStatus it is strict and reports unknown labels.
func ParseBatchStatus(label string) (BatchStatus, error) {
	for _, status := range batchStatuses {
		if status.String() == label {
			return status, nil
		}
	}
	return BatchStatusUnknown, fmt.Errorf("unknown batch status %q", label)
}

// Value implements driver.Valuer so the status is stored by label.
func (s BatchStatus) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *BatchStatus) Scan(src interface{}) error {
	var label string
	switch v := src.(type) {
	case string:
		label = v
	case []byte:
		label = string(v)
	case nil:
		*s = BatchStatusUnknown
		return nil
	default:
		return fmt.Errorf("cannot scan %T into BatchStatus", src)
	}
	parsed, err := ParseBatchStatus(label)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
