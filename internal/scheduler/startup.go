package scheduler

import (
	"context"
	"fmt"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/sirupsen/logrus"
)

// Manifest lists the jobs this process provides. It is built by the
// composition root before Startup runs.
type Manifest struct {
	Jobs []Job
}

// Startup registers every manifest job in the catalog, binds a scheduler to
// each persisted configuration and then arms them all. The first failure
// aborts startup; a duplicate job name surfaces as *DuplicateCatalogEntryError.
func Startup(ctx context.Context, registry *Registry, manifest Manifest, configs types.JobConfigurationRepository) error {
	for _, job := range manifest.Jobs {
		if err := registry.Catalog().Register(job); err != nil {
			return fmt.Errorf("failed to register job catalog: %w", err)
		}
	}

	jobConfigs, err := configs.GetJobConfigurations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load job configurations: %w", err)
	}

	for _, cfg := range jobConfigs {
		if cfg == nil {
			continue
		}
		if err := registry.RegisterSchedulerForJob(*cfg); err != nil {
			return fmt.Errorf("failed to register scheduler for configuration %s: %w", cfg.ID, err)
		}
	}

	registry.ScheduleAll()

	registry.logger.WithFields(logrus.Fields{
		"jobs":       len(manifest.Jobs),
		"schedulers": len(jobConfigs),
	}).Info("Scheduler startup complete")

	return nil
}
