package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"gopkg.in/yaml.v3"
)

// JobsFile is the YAML seed of job configurations loaded at startup.
type JobsFile struct {
	Jobs []types.JobConfiguration `yaml:"jobs"`
}

func LoadJobsFile(path string) (*JobsFile, error) {
	if path == "" {
		path = "config/jobs.yaml"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs file: %w", err)
	}

	var file JobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse jobs file: %w", err)
	}

	seen := make(map[string]bool, len(file.Jobs))
	for _, job := range file.Jobs {
		if job.ID == "" {
			return nil, fmt.Errorf("job configuration for %q has no id", job.JobName)
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("duplicate job configuration id %s", job.ID)
		}
		seen[job.ID] = true
	}

	return &file, nil
}

func (f *JobsFile) GetJobByID(id string) *types.JobConfiguration {
	for i := range f.Jobs {
		if f.Jobs[i].ID == id {
			return &f.Jobs[i]
		}
	}
	return nil
}

func (f *JobsFile) EnabledJobs() []types.JobConfiguration {
	var jobs []types.JobConfiguration
	for _, job := range f.Jobs {
		if job.Enabled {
			jobs = append(jobs, job)
		}
	}
	return jobs
}
