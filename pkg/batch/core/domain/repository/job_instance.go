package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
)

// ErrJobInstanceNotFound is returned when a JobInstance is not found.
var ErrJobInstanceNotFound = errors.New("job instance not found")

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
}

// JobInstanceDao persists job instances.
type JobInstanceDao interface {
	// CreateJobInstance persists a new instance for jobName and the identifying part of params.
	// It assigns the id, sets the version to 0 and fails with an illegal argument error
	// when an instance with the same name and key already exists.
	CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// GetJobInstance finds the instance for jobName whose key matches params.
	GetJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// GetJobInstanceByID finds an instance by id.
	GetJobInstanceByID(ctx context.Context, instanceID int64) (*model.JobInstance, error)

	// GetJobInstanceForExecution finds the instance owning the given execution.
	GetJobInstanceForExecution(ctx context.Context, jobExecution *model.JobExecution) (*model.JobInstance, error)

	// GetJobInstances returns up to count instances of jobName, newest first, skipping the first start.
	GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// FindJobInstancesByName is GetJobInstances with "*" accepted as a wildcard in jobName.
	FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// GetJobNames returns the distinct job names in ascending order.
	GetJobNames(ctx context.Context) ([]string, error)

	// GetJobInstanceCount returns the number of instances of jobName.
	// An unknown job name yields a NoSuchJobError.
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)
}
