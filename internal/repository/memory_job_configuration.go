package repository

import (
	"context"
	"sync"

	"github.com/0xPuncker/batch-registry/pkg/types"
)

// MemoryJobConfigurationRepository is the default job configuration store,
// seeded from the jobs YAML file.
type MemoryJobConfigurationRepository struct {
	mu      sync.RWMutex
	configs map[string]*types.JobConfiguration
	order   []string
}

func NewMemoryJobConfigurationRepository(seed []types.JobConfiguration) *MemoryJobConfigurationRepository {
	r := &MemoryJobConfigurationRepository{
		configs: make(map[string]*types.JobConfiguration),
	}
	for i := range seed {
		r.put(&seed[i])
	}
	return r
}

func (r *MemoryJobConfigurationRepository) GetJobConfigurations(_ context.Context) ([]*types.JobConfiguration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	configs := make([]*types.JobConfiguration, 0, len(r.order))
	for _, id := range r.order {
		configs = append(configs, cloneJobConfiguration(r.configs[id]))
	}
	return configs, nil
}

func (r *MemoryJobConfigurationRepository) GetJobConfiguration(_ context.Context, id string) (*types.JobConfiguration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.configs[id]
	if !exists {
		return nil, types.ErrJobConfigurationNotFound
	}
	return cloneJobConfiguration(cfg), nil
}

func (r *MemoryJobConfigurationRepository) Save(_ context.Context, cfg *types.JobConfiguration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(cfg)
	return nil
}

func (r *MemoryJobConfigurationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.configs[id]; !exists {
		return types.ErrJobConfigurationNotFound
	}
	delete(r.configs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryJobConfigurationRepository) put(cfg *types.JobConfiguration) {
	if _, exists := r.configs[cfg.ID]; !exists {
		r.order = append(r.order, cfg.ID)
	}
	r.configs[cfg.ID] = cloneJobConfiguration(cfg)
}

func cloneJobConfiguration(cfg *types.JobConfiguration) *types.JobConfiguration {
	c := *cfg
	if cfg.Parameters != nil {
		c.Parameters = make(map[string]string, len(cfg.Parameters))
		for k, v := range cfg.Parameters {
			c.Parameters[k] = v
		}
	}
	return &c
}
