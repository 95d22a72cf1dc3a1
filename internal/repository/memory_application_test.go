package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xPuncker/batch-registry/internal/testutil"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoredApp(id, name string, status types.ApplicationStatus) *types.ClientApplication {
	app := testutil.NewTestApplication(name, "host-"+id, 8080)
	app.ID = id
	app.Status = status
	return app
}

func TestMemoryApplicationRepositorySave(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 0)

	previous, err := repo.Save(ctx, newStoredApp("a1", "billing", types.StatusUnknown))
	require.NoError(t, err)
	assert.Nil(t, previous)

	previous, err = repo.Save(ctx, newStoredApp("a1", "billing", types.StatusUp))
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, types.StatusUnknown, previous.Status)

	found, err := repo.Find(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUp, found.Status)

	missing, err := repo.Find(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryApplicationRepositoryStoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 0)

	app := newStoredApp("a1", "billing", types.StatusUp)
	app.Metadata = map[string]string{"team": "core"}
	_, err := repo.Save(ctx, app)
	require.NoError(t, err)

	app.Status = types.StatusDown
	app.Metadata["team"] = "other"

	found, err := repo.Find(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusUp, found.Status)
	assert.Equal(t, "core", found.Metadata["team"])
}

func TestMemoryApplicationRepositoryFindAllKeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 0)

	for _, id := range []string{"c", "a", "b"} {
		_, err := repo.Save(ctx, newStoredApp(id, "app-"+id, types.StatusUp))
		require.NoError(t, err)
	}
	_, err := repo.Save(ctx, newStoredApp("c", "app-c", types.StatusDown))
	require.NoError(t, err)

	apps, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, apps, 3)
	assert.Equal(t, "c", apps[0].ID)
	assert.Equal(t, "a", apps[1].ID)
	assert.Equal(t, "b", apps[2].ID)
}

func TestMemoryApplicationRepositoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 0)

	_, err := repo.Save(ctx, newStoredApp("a1", "billing", types.StatusUp))
	require.NoError(t, err)
	_, err = repo.Save(ctx, newStoredApp("a2", "invoices", types.StatusUp))
	require.NoError(t, err)

	deleted, err := repo.Delete(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, "billing", deleted.Name)

	deleted, err = repo.Delete(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, deleted)

	require.NoError(t, repo.Clear(ctx))
	apps, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func TestMemoryApplicationRepositoryExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 50*time.Millisecond)

	_, err := repo.Save(ctx, newStoredApp("a1", "billing", types.StatusUp))
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	found, err := repo.Find(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, found)

	apps, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)

	previous, err := repo.Save(ctx, newStoredApp("a1", "billing", types.StatusUp))
	require.NoError(t, err)
	assert.Nil(t, previous)
}

func TestMemoryApplicationRepositoryConcurrentSaveReportsOneNew(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryApplicationRepository(testutil.NewTestLogger(), 0)

	var (
		wg       sync.WaitGroup
		newCount int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			previous, err := repo.Save(ctx, newStoredApp("same", fmt.Sprintf("app-%d", i), types.StatusUp))
			assert.NoError(t, err)
			if previous == nil {
				atomic.AddInt32(&newCount, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), newCount)
	apps, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, apps, 1)
}
