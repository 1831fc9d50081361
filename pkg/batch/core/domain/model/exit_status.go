package model

import (
	"fmt"
	"strings"
)

// Well-known exit codes.
const (
	ExitCodeUnknown   = "UNKNOWN"
	ExitCodeExecuting = "EXECUTING"
	ExitCodeCompleted = "COMPLETED"
	ExitCodeNoop      = "NOOP"
	ExitCodeFailed    = "FAILED"
	ExitCodeStopped   = "STOPPED"
)

// ExitStatus is the immutable outcome of a job or step: an exit code plus a free-form description.
// The zero value is not meaningful; use NewExitStatus or one of the predefined values.
type ExitStatus struct {
	exitCode        string
	exitDescription string
}

var (
	// ExitStatusUnknown is used for a job whose state cannot be determined.
	ExitStatusUnknown = ExitStatus{exitCode: ExitCodeUnknown}
	// ExitStatusExecuting is the status of work still in progress.
	ExitStatusExecuting = ExitStatus{exitCode: ExitCodeExecuting}
	// ExitStatusCompleted is the status of finished work.
	ExitStatusCompleted = ExitStatus{exitCode: ExitCodeCompleted}
	// ExitStatusNoop is the status of work that had nothing to do.
	ExitStatusNoop = ExitStatus{exitCode: ExitCodeNoop}
	// ExitStatusFailed is the status of work that ended with an error.
	ExitStatusFailed = ExitStatus{exitCode: ExitCodeFailed}
	// ExitStatusStopped is the status of work interrupted by a stop request.
	ExitStatusStopped = ExitStatus{exitCode: ExitCodeStopped}
)

// NewExitStatus creates an ExitStatus with an empty description.
func NewExitStatus(exitCode string) ExitStatus {
	return ExitStatus{exitCode: exitCode}
}

// NewExitStatusWithDescription creates an ExitStatus with a description.
func NewExitStatusWithDescription(exitCode, exitDescription string) ExitStatus {
	return ExitStatus{exitCode: exitCode, exitDescription: exitDescription}
}

// ExitCode returns the exit code.
func (e ExitStatus) ExitCode() string {
	return e.exitCode
}

// ExitDescription returns the exit description, possibly empty.
func (e ExitStatus) ExitDescription() string {
	return e.exitDescription
}

// severity ranks an exit code. Custom codes outrank every built-in one.
func (e ExitStatus) severity() int {
	switch {
	case strings.HasPrefix(e.exitCode, ExitCodeExecuting):
		return 1
	case strings.HasPrefix(e.exitCode, ExitCodeCompleted):
		return 2
	case strings.HasPrefix(e.exitCode, ExitCodeNoop):
		return 3
	case strings.HasPrefix(e.exitCode, ExitCodeStopped):
		return 4
	case strings.HasPrefix(e.exitCode, ExitCodeFailed):
		return 5
	case strings.HasPrefix(e.exitCode, ExitCodeUnknown):
		return 6
	default:
		return 7
	}
}

// CompareTo orders exit statuses by severity, then by exit code.
// It returns a negative number, zero or a positive number as e is less than, equal to or greater than other.
func (e ExitStatus) CompareTo(other ExitStatus) int {
	mine, theirs := e.severity(), other.severity()
	switch {
	case theirs > mine:
		return -1
	case theirs < mine:
		return 1
	default:
		return strings.Compare(e.exitCode, other.exitCode)
	}
}

// And combines two statuses: descriptions are merged and the more severe exit code is kept.
func (e ExitStatus) And(other ExitStatus) ExitStatus {
	result := e.AddExitDescription(other.exitDescription)
	if e.CompareTo(other) < 0 {
		result = result.ReplaceExitCode(other.exitCode)
	}
	return result
}

// ReplaceExitCode returns a copy with a new exit code and the same description.
func (e ExitStatus) ReplaceExitCode(exitCode string) ExitStatus {
	return ExitStatus{exitCode: exitCode, exitDescription: e.exitDescription}
}

// AddExitDescription appends description, separated by "; ", unless it is blank or already the current description.
func (e ExitStatus) AddExitDescription(description string) ExitStatus {
	var b strings.Builder
	changed := strings.TrimSpace(description) != "" && e.exitDescription != description
	if strings.TrimSpace(e.exitDescription) != "" {
		b.WriteString(e.exitDescription)
		if changed {
			b.WriteString("; ")
		}
	}
	if changed {
		b.WriteString(description)
	}
	return ExitStatus{exitCode: e.exitCode, exitDescription: b.String()}
}

// AddExitDescriptionError appends the message of err to the description.
func (e ExitStatus) AddExitDescriptionError(err error) ExitStatus {
	if err == nil {
		return e
	}
	return e.AddExitDescription(err.Error())
}

// IsRunning reports whether the code denotes work that has not finished yet.
func (e ExitStatus) IsRunning() bool {
	return e.exitCode == ExitCodeExecuting || e.exitCode == ExitCodeUnknown
}

// Equals compares by the formatted representation.
func (e ExitStatus) Equals(other ExitStatus) bool {
	return e.String() == other.String()
}

func (e ExitStatus) String() string {
	return fmt.Sprintf("exitCode=%s;exitDescription=%s", e.exitCode, e.exitDescription)
}
