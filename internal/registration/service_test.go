package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/0xPuncker/batch-registry/internal/repository"
	"github.com/0xPuncker/batch-registry/internal/testutil"
	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupService() (*Service, *testutil.RecordingPublisher) {
	logger := testutil.NewTestLogger()
	publisher := &testutil.RecordingPublisher{}
	repo := repository.NewMemoryApplicationRepository(logger, 0)
	return NewService(repo, publisher, logger, nil), publisher
}

// stubRepository lets tests inject repository failures and nil results.
type stubRepository struct {
	saveCalls int
	err       error
	findAll   []*types.ClientApplication
}

func (r *stubRepository) Save(context.Context, *types.ClientApplication) (*types.ClientApplication, error) {
	r.saveCalls++
	return nil, r.err
}

func (r *stubRepository) Find(context.Context, string) (*types.ClientApplication, error) {
	return nil, r.err
}

func (r *stubRepository) FindAll(context.Context) ([]*types.ClientApplication, error) {
	return r.findAll, r.err
}

func (r *stubRepository) Delete(context.Context, string) (*types.ClientApplication, error) {
	return nil, r.err
}

func (r *stubRepository) Clear(context.Context) error {
	return r.err
}

// pausingRepository holds the first Find after it has read the store, until
// release is closed.
type pausingRepository struct {
	types.ApplicationRepository
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newPausingRepository(inner types.ApplicationRepository) *pausingRepository {
	return &pausingRepository{
		ApplicationRepository: inner,
		entered:               make(chan struct{}),
		release:               make(chan struct{}),
	}
}

func (r *pausingRepository) Find(ctx context.Context, id string) (*types.ClientApplication, error) {
	app, err := r.ApplicationRepository.Find(ctx, id)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.entered)
		<-r.release
	}
	return app, err
}

func TestRegisterNewApplication(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	app := testutil.NewTestApplication("billing", "h1", 8080)
	stored, err := service.Register(ctx, app)
	require.NoError(t, err)

	assert.Equal(t, GenerateID(app), stored.ID)
	assert.Equal(t, types.StatusUnknown, stored.Status)
	assert.False(t, stored.LastSeen.IsZero())

	events := publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, types.EventRegistered, events[0].Type)
	assert.Equal(t, stored.ID, events[0].Application.ID)
}

func TestRegisterPreservesExistingStatus(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	first := testutil.NewTestApplication("billing", "h1", 8080)
	first.Status = types.StatusUp
	_, err := service.Register(ctx, first)
	require.NoError(t, err)

	heartbeat := testutil.NewTestApplication("billing", "h1", 8080)
	stored, err := service.Register(ctx, heartbeat)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUp, stored.Status)

	found, err := service.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUp, found.Status)

	assert.Equal(t, 1, publisher.Count(types.EventRegistered))
}

func TestRegisterExplicitStatusWins(t *testing.T) {
	ctx := context.Background()
	service, _ := setupService()

	up := testutil.NewTestApplication("billing", "h1", 8080)
	up.Status = types.StatusUp
	_, err := service.Register(ctx, up)
	require.NoError(t, err)

	down := testutil.NewTestApplication("billing", "h1", 8080)
	down.Status = types.StatusDown
	stored, err := service.Register(ctx, down)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDown, stored.Status)
}

func TestRegisterValidationHappensBeforePersistence(t *testing.T) {
	ctx := context.Background()
	repo := &stubRepository{}
	publisher := &testutil.RecordingPublisher{}
	service := NewService(repo, publisher, testutil.NewTestLogger(), nil)

	_, err := service.Register(ctx, &types.ClientApplication{Name: "billing", Port: 8080})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, repo.saveCalls)
	assert.Empty(t, publisher.Events())
}

func TestRegisterPropagatesRepositoryErrors(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("store unavailable")
	repo := &stubRepository{err: storeErr}
	publisher := &testutil.RecordingPublisher{}
	service := NewService(repo, publisher, testutil.NewTestLogger(), nil)

	app := testutil.NewTestApplication("billing", "h1", 8080)
	app.Status = types.StatusUp
	_, err := service.Register(ctx, app)
	assert.ErrorIs(t, err, storeErr)

	heartbeat := testutil.NewTestApplication("billing", "h1", 8080)
	_, err = service.Register(ctx, heartbeat)
	assert.ErrorIs(t, err, storeErr)

	assert.Empty(t, publisher.Events())
}

func TestRegisterConcurrentNewRegistrationsPublishOnce(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, publisher.Count(types.EventRegistered))
}

func TestDeleteRegistration(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	deleted, err := service.DeleteRegistration(ctx, "never-registered")
	require.NoError(t, err)
	assert.Nil(t, deleted)
	assert.Empty(t, publisher.Events())

	stored, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
	require.NoError(t, err)

	deleted, err = service.DeleteRegistration(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, stored.ID, deleted.ID)
	assert.Equal(t, 1, publisher.Count(types.EventDeleteRegistration))

	deleted, err = service.DeleteRegistration(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, deleted)
	assert.Equal(t, 1, publisher.Count(types.EventDeleteRegistration))
}

func TestGetIDByName(t *testing.T) {
	ctx := context.Background()
	service, _ := setupService()

	_, err := service.GetIDByName(ctx, "")
	assert.ErrorIs(t, err, ErrLookup)

	_, err = service.GetIDByName(ctx, "   ")
	assert.ErrorIs(t, err, ErrLookup)

	_, err = service.GetIDByName(ctx, "x")
	assert.ErrorIs(t, err, ErrLookup)

	first, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
	require.NoError(t, err)
	_, err = service.Register(ctx, testutil.NewTestApplication("billing", "h2", 8080))
	require.NoError(t, err)
	other, err := service.Register(ctx, testutil.NewTestApplication("invoices", "h3", 8080))
	require.NoError(t, err)

	id, err := service.GetIDByName(ctx, "billing")
	require.NoError(t, err)
	assert.Equal(t, first.ID, id)

	id, err = service.GetIDByName(ctx, "invoices")
	require.NoError(t, err)
	assert.Equal(t, other.ID, id)

	_, err = service.GetIDByName(ctx, "Billing")
	var lookupErr *LookupError
	assert.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "Billing", lookupErr.Name)
}

func TestGetAllTreatsNilAsEmpty(t *testing.T) {
	service := NewService(&stubRepository{}, nil, testutil.NewTestLogger(), nil)

	apps, err := service.GetAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, apps)
	assert.Empty(t, apps)

	_, err = service.GetIDByName(context.Background(), "billing")
	assert.ErrorIs(t, err, ErrLookup)
}

func TestClearDoesNotPublish(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	_, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
	require.NoError(t, err)
	_, err = service.Register(ctx, testutil.NewTestApplication("invoices", "h2", 8080))
	require.NoError(t, err)

	require.NoError(t, service.Clear(ctx))

	apps, err := service.GetAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, apps)
	assert.Equal(t, 0, publisher.Count(types.EventDeleteRegistration))
}

func TestRegistrationLifecycle(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	app := &types.ClientApplication{Name: "billing", Host: "h1", Port: 8080}
	stored, err := service.Register(ctx, app)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUnknown, stored.Status)
	assert.Equal(t, 1, publisher.Count(types.EventRegistered))
	id := stored.ID

	again := &types.ClientApplication{Name: "billing", Host: "h1", Port: 8080, Status: types.StatusUp}
	stored, err = service.Register(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, id, stored.ID)
	assert.Equal(t, types.StatusUp, stored.Status)
	assert.Equal(t, 1, publisher.Count(types.EventRegistered))

	deleted, err := service.DeleteRegistration(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, types.StatusUp, deleted.Status)
	assert.Equal(t, 1, publisher.Count(types.EventDeleteRegistration))

	apps, err := service.GetAll(ctx)
	require.NoError(t, err)
	for _, a := range apps {
		assert.NotEqual(t, id, a.ID)
	}
}

func TestRegisterHeartbeatDoesNotOverwriteConcurrentStatus(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewTestLogger()
	repo := newPausingRepository(repository.NewMemoryApplicationRepository(logger, 0))
	service := NewService(repo, &testutil.RecordingPublisher{}, logger, nil)

	seed := testutil.NewTestApplication("billing", "h1", 8080)
	seed.Status = types.StatusDown
	stored, err := service.Register(ctx, seed)
	require.NoError(t, err)
	id := stored.ID

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
		assert.NoError(t, err)
	}()

	<-repo.entered
	go func() {
		defer wg.Done()
		up := testutil.NewTestApplication("billing", "h1", 8080)
		up.Status = types.StatusUp
		_, err := service.Register(ctx, up)
		assert.NoError(t, err)
	}()

	// Give the explicit registration time to reach the store.
	time.Sleep(50 * time.Millisecond)
	close(repo.release)
	wg.Wait()

	found, err := service.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, types.StatusUp, found.Status)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	stored, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
	require.NoError(t, err)
	require.Equal(t, 1, publisher.Count(types.EventRegistered))

	updated, err := service.UpdateStatus(ctx, stored.ID, types.StatusDown)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, types.StatusDown, updated.Status)
	assert.Equal(t, "billing", updated.Name)

	found, err := service.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDown, found.Status)
	assert.Equal(t, 1, publisher.Count(types.EventRegistered))
}

func TestUpdateStatusNeverCreates(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewTestLogger()
	repo := &stubRepository{}
	service := NewService(repo, &testutil.RecordingPublisher{}, logger, nil)

	updated, err := service.UpdateStatus(ctx, "missing", types.StatusUp)
	require.NoError(t, err)
	assert.Nil(t, updated)
	assert.Zero(t, repo.saveCalls)
}

func TestUpdateStatusAfterDelete(t *testing.T) {
	ctx := context.Background()
	service, publisher := setupService()

	stored, err := service.Register(ctx, testutil.NewTestApplication("billing", "h1", 8080))
	require.NoError(t, err)
	_, err = service.DeleteRegistration(ctx, stored.ID)
	require.NoError(t, err)

	updated, err := service.UpdateStatus(ctx, stored.ID, types.StatusUp)
	require.NoError(t, err)
	assert.Nil(t, updated)

	found, err := service.Get(ctx, stored.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
	assert.Equal(t, 1, publisher.Count(types.EventRegistered))
}
