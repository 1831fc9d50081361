package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"

	model "github.com/tigerroll/batchstate/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/batchstate/pkg/batch/core/domain/repository"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

// JobInstanceDao keeps job instances keyed by "jobName|jobKey".
type JobInstanceDao struct {
	mu           sync.RWMutex
	jobInstances map[string]*model.JobInstance
	ids          idSequence
	keyGenerator model.JobKeyGenerator
}

// NewJobInstanceDao creates an empty JobInstanceDao.
func NewJobInstanceDao() *JobInstanceDao {
	return &JobInstanceDao{
		jobInstances: make(map[string]*model.JobInstance),
		keyGenerator: model.NewDefaultJobKeyGenerator(),
	}
}

var _ repository.JobInstanceDao = (*JobInstanceDao)(nil)

func (d *JobInstanceDao) instanceKey(jobName string, params model.JobParameters) string {
	return jobName + "|" + d.keyGenerator.GenerateKey(params)
}

// CreateJobInstance implements repository.JobInstanceDao.
func (d *JobInstanceDao) CreateJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	const op = "inmemory.JobInstanceDao.CreateJobInstance"

	jobInstance, err := model.NewJobInstance(jobName)
	if err != nil {
		return nil, exception.NewIllegalArgumentError(op, err.Error(), err)
	}
	key := d.instanceKey(jobName, params)

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.jobInstances[key]; exists {
		return nil, exception.NewIllegalArgumentError(op, "JobInstance must not already exist", nil)
	}
	jobInstance.SetID(d.ids.next())
	jobInstance.IncrementVersion()
	d.jobInstances[key] = jobInstance.Clone()

	logger.Debugf("Created %s", jobInstance)
	return jobInstance, nil
}

// GetJobInstance implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobInstance(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	key := d.instanceKey(jobName, params)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if ji, ok := d.jobInstances[key]; ok {
		return ji.Clone(), nil
	}
	return nil, exception.NewBatchErrorf("inmemory.JobInstanceDao.GetJobInstance",
		"no job instance for job %s and key %s", jobName, key, repository.ErrJobInstanceNotFound)
}

// GetJobInstanceByID implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobInstanceByID(ctx context.Context, instanceID int64) (*model.JobInstance, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, ji := range d.jobInstances {
		if ji.ID() == instanceID {
			return ji.Clone(), nil
		}
	}
	return nil, notFound("inmemory.JobInstanceDao.GetJobInstanceByID", "job instance %d not found", instanceID, repository.ErrJobInstanceNotFound)
}

// GetJobInstanceForExecution implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobInstanceForExecution(ctx context.Context, jobExecution *model.JobExecution) (*model.JobInstance, error) {
	const op = "inmemory.JobInstanceDao.GetJobInstanceForExecution"

	if jobExecution == nil || jobExecution.JobInstance() == nil || !jobExecution.JobInstance().HasID() {
		return nil, exception.NewIllegalArgumentError(op, "JobExecution must carry a saved JobInstance", nil)
	}
	return d.GetJobInstanceByID(ctx, jobExecution.JobInstance().ID())
}

// GetJobInstances implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return d.find(func(name string) bool { return name == jobName }, start, count), nil
}

// FindJobInstancesByName implements repository.JobInstanceDao.
func (d *JobInstanceDao) FindJobInstancesByName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return d.find(wildcardMatcher(jobName), start, count), nil
}

// find returns the matching instances newest first, paged by start and count.
func (d *JobInstanceDao) find(match func(string) bool, start, count int) []*model.JobInstance {
	d.mu.RLock()
	var matched []*model.JobInstance
	for _, ji := range d.jobInstances {
		if match(ji.JobName()) {
			matched = append(matched, ji.Clone())
		}
	}
	d.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID() > matched[j].ID() })

	if start < 0 {
		start = 0
	}
	if start >= len(matched) || count <= 0 {
		return []*model.JobInstance{}
	}
	end := start + count
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end]
}

// GetJobNames implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobNames(ctx context.Context) ([]string, error) {
	d.mu.RLock()
	seen := make(map[string]struct{})
	for _, ji := range d.jobInstances {
		seen[ji.JobName()] = struct{}{}
	}
	d.mu.RUnlock()

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetJobInstanceCount implements repository.JobInstanceDao.
func (d *JobInstanceDao) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	count := 0
	for _, ji := range d.jobInstances {
		if ji.JobName() == jobName {
			count++
		}
	}
	if count == 0 {
		return 0, exception.NewNoSuchJobException("inmemory.JobInstanceDao.GetJobInstanceCount", jobName)
	}
	return count, nil
}

// wildcardMatcher turns a pattern where "*" matches any run of characters into a predicate.
func wildcardMatcher(pattern string) func(string) bool {
	if !strings.Contains(pattern, "*") {
		return func(name string) bool { return name == pattern }
	}
	parts := strings.Split(pattern, "*")
	return func(name string) bool {
		if !strings.HasPrefix(name, parts[0]) {
			return false
		}
		rest := name[len(parts[0]):]
		for _, part := range parts[1 : len(parts)-1] {
			idx := strings.Index(rest, part)
			if idx < 0 {
				return false
			}
			rest = rest[idx+len(part):]
		}
		return strings.HasSuffix(rest, parts[len(parts)-1])
	}
}
