package model

import (
	"errors"
	"fmt"
)

// ErrEmptyJobName is returned when a job instance is created without a name.
var ErrEmptyJobName = errors.New("a job name is required")

// JobInstance is the logical run of a job: a job name together with an identifying parameter set.
// Executions of the same instance share it; it is immutable apart from its version.
type JobInstance struct {
	Entity
	jobName string
}

// NewJobInstance creates an instance without an id.
func NewJobInstance(jobName string) (*JobInstance, error) {
	if jobName == "" {
		return nil, ErrEmptyJobName
	}
	return &JobInstance{jobName: jobName}, nil
}

// NewJobInstanceWithID creates an instance carrying an existing id.
func NewJobInstanceWithID(id int64, jobName string) (*JobInstance, error) {
	ji, err := NewJobInstance(jobName)
	if err != nil {
		return nil, err
	}
	ji.SetID(id)
	return ji, nil
}

// JobName returns the name of the job.
func (ji *JobInstance) JobName() string {
	return ji.jobName
}

// InstanceID returns the id of the instance, 0 when not persisted.
func (ji *JobInstance) InstanceID() int64 {
	return ji.ID()
}

// Equals reports whether both refer to the same persisted instance.
func (ji *JobInstance) Equals(other *JobInstance) bool {
	if ji == nil || other == nil {
		return ji == other
	}
	return ji.sameIdentity(&other.Entity)
}

// Clone returns an independent copy.
func (ji *JobInstance) Clone() *JobInstance {
	if ji == nil {
		return nil
	}
	cp := &JobInstance{jobName: ji.jobName}
	cp.copyIdentityFrom(&ji.Entity)
	return cp
}

func (ji *JobInstance) String() string {
	return fmt.Sprintf("%s, Job=[%s]", ji.describe("JobInstance"), ji.jobName)
}
