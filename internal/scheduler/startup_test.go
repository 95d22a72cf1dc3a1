package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/0xPuncker/batch-registry/internal/repository"
	"github.com/0xPuncker/batch-registry/internal/testutil"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingConfigRepository struct {
	*repository.MemoryJobConfigurationRepository
	err error
}

func (r *failingConfigRepository) GetJobConfigurations(context.Context) ([]*types.JobConfiguration, error) {
	return nil, r.err
}

func newStartupRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := testutil.NewTestLogger()
	registry := NewRegistry(logger, NewCatalog(logger), types.JobSchedulerConfig{}, nil)
	t.Cleanup(registry.Stop)
	return registry
}

func TestStartupRegistersAndArms(t *testing.T) {
	registry := newStartupRegistry(t)
	configs := repository.NewMemoryJobConfigurationRepository([]types.JobConfiguration{
		cronConfig("c1", "0 0 * * * *"),
		{ID: "m1", JobName: "archive", TriggerType: types.TriggerManual, Enabled: true},
		{ID: "d1", JobName: "archive", TriggerType: types.TriggerCron, CronExpression: "0 0 1 * * *"},
	})

	manifest := Manifest{Jobs: []Job{noopJob("reconcile"), noopJob("archive")}}
	require.NoError(t, Startup(context.Background(), registry, manifest, configs))

	assert.True(t, registry.IsRunning())
	assert.Equal(t, []string{"archive", "reconcile"}, registry.Catalog().Names())

	infos := registry.ListSchedulers()
	require.Len(t, infos, 3)
	armed := map[string]bool{}
	for _, info := range infos {
		armed[info.ConfigurationID] = info.Armed
	}
	assert.Equal(t, map[string]bool{"c1": true, "d1": false, "m1": false}, armed)
	assert.Len(t, registry.cron.Entries(), 1)
}

func TestStartupAbortsOnDuplicateJob(t *testing.T) {
	registry := newStartupRegistry(t)
	configs := repository.NewMemoryJobConfigurationRepository([]types.JobConfiguration{cronConfig("c1", "0 0 * * * *")})

	manifest := Manifest{Jobs: []Job{noopJob("reconcile"), noopJob("reconcile")}}
	err := Startup(context.Background(), registry, manifest, configs)

	var dup *DuplicateCatalogEntryError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "reconcile", dup.Name)
	assert.False(t, registry.IsRunning())
	assert.Empty(t, registry.ListSchedulers())
}

func TestStartupFailsOnUnknownJob(t *testing.T) {
	registry := newStartupRegistry(t)
	configs := repository.NewMemoryJobConfigurationRepository([]types.JobConfiguration{cronConfig("c1", "0 0 * * * *")})

	err := Startup(context.Background(), registry, Manifest{Jobs: []Job{noopJob("archive")}}, configs)
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.False(t, registry.IsRunning())
}

func TestStartupPropagatesRepositoryErrors(t *testing.T) {
	registry := newStartupRegistry(t)
	storeErr := errors.New("database unavailable")
	configs := &failingConfigRepository{
		MemoryJobConfigurationRepository: repository.NewMemoryJobConfigurationRepository(nil),
		err:                              storeErr,
	}

	err := Startup(context.Background(), registry, Manifest{Jobs: []Job{noopJob("reconcile")}}, configs)
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, registry.IsRunning())
}
