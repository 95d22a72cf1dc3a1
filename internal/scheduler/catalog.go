package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

var ErrJobNotFound = errors.New("job not found in catalog")

// Job is a runnable job definition addressable by name. What a run does is
// owned by the job itself.
type Job interface {
	Name() string
	Run(ctx context.Context, params map[string]string) error
}

type JobFunc func(ctx context.Context, params map[string]string) error

type namedJob struct {
	name string
	run  JobFunc
}

func (j *namedJob) Name() string { return j.name }

func (j *namedJob) Run(ctx context.Context, params map[string]string) error {
	return j.run(ctx, params)
}

// NewJob binds fn to name so it can be registered in a Catalog.
func NewJob(name string, fn JobFunc) Job {
	return &namedJob{name: name, run: fn}
}

// DuplicateCatalogEntryError means two job definitions claim the same name.
type DuplicateCatalogEntryError struct {
	Name string
}

func (e *DuplicateCatalogEntryError) Error() string {
	return fmt.Sprintf("a job named %q is already registered in the catalog", e.Name)
}

// Catalog is the process-local set of known jobs.
type Catalog struct {
	mu     sync.RWMutex
	jobs   map[string]Job
	logger *logrus.Logger
}

func NewCatalog(logger *logrus.Logger) *Catalog {
	return &Catalog{
		jobs:   make(map[string]Job),
		logger: logger,
	}
}

func (c *Catalog) Register(job Job) error {
	if job == nil || job.Name() == "" {
		return errors.New("job must have a name")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.jobs[job.Name()]; exists {
		return &DuplicateCatalogEntryError{Name: job.Name()}
	}
	c.jobs[job.Name()] = job
	c.logger.WithField("job_name", job.Name()).Debug("Job registered in catalog")
	return nil
}

func (c *Catalog) Lookup(name string) (Job, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	job, exists := c.jobs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job, nil
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.jobs))
	for name := range c.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
