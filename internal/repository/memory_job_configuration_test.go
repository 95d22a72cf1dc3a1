package repository

import (
	"context"
	"testing"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobConfigurationRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobConfigurationRepository([]types.JobConfiguration{
		{ID: "nightly", JobName: "importJob", TriggerType: types.TriggerCron, CronExpression: "0 0 2 * * *", Enabled: true},
		{ID: "cleanup", JobName: "cleanupJob", TriggerType: types.TriggerPeriodic, FixedDelay: "10m", Enabled: true},
	})

	configs, err := repo.GetJobConfigurations(ctx)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "nightly", configs[0].ID)
	assert.Equal(t, "cleanup", configs[1].ID)

	updated := *configs[1]
	updated.Enabled = false
	updated.Parameters = map[string]string{"keep": "7d"}
	require.NoError(t, repo.Save(ctx, &updated))
	updated.Parameters["keep"] = "changed"

	stored, err := repo.GetJobConfiguration(ctx, "cleanup")
	require.NoError(t, err)
	assert.False(t, stored.Enabled)
	assert.Equal(t, "7d", stored.Parameters["keep"])

	require.NoError(t, repo.Delete(ctx, "nightly"))
	assert.ErrorIs(t, repo.Delete(ctx, "nightly"), types.ErrJobConfigurationNotFound)

	_, err = repo.GetJobConfiguration(ctx, "nightly")
	assert.ErrorIs(t, err, types.ErrJobConfigurationNotFound)

	configs, err = repo.GetJobConfigurations(ctx)
	require.NoError(t, err)
	assert.Len(t, configs, 1)
}
