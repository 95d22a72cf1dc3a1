package repository

import (
	"context"
	"sync"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// MemoryApplicationRepository keeps registrations in process memory.
// A positive ttl lets endpoints that stopped heart-beating expire.
type MemoryApplicationRepository struct {
	cache  *cache.Cache
	logger *logrus.Logger
	ttl    time.Duration
	mu     sync.Mutex
	order  []string
}

func NewMemoryApplicationRepository(logger *logrus.Logger, ttl time.Duration) *MemoryApplicationRepository {
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		expiration = ttl
		cleanup = ttl / 2
	}

	r := &MemoryApplicationRepository{
		cache:  cache.New(expiration, cleanup),
		logger: logger,
		ttl:    ttl,
	}
	r.cache.OnEvicted(func(id string, _ interface{}) {
		logger.WithField("application_id", id).Debug("Application registration evicted")
	})
	return r
}

func (r *MemoryApplicationRepository) Save(_ context.Context, app *types.ClientApplication) (*types.ClientApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var previous *types.ClientApplication
	if value, found := r.cache.Get(app.ID); found {
		previous = value.(*types.ClientApplication).Clone()
	} else {
		r.removeFromOrder(app.ID)
		r.order = append(r.order, app.ID)
	}

	r.cache.Set(app.ID, app.Clone(), cache.DefaultExpiration)
	return previous, nil
}

func (r *MemoryApplicationRepository) Find(_ context.Context, id string) (*types.ClientApplication, error) {
	if value, found := r.cache.Get(id); found {
		return value.(*types.ClientApplication).Clone(), nil
	}
	return nil, nil
}

func (r *MemoryApplicationRepository) FindAll(_ context.Context) ([]*types.ClientApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	apps := make([]*types.ClientApplication, 0, len(r.order))
	live := r.order[:0]
	for _, id := range r.order {
		value, found := r.cache.Get(id)
		if !found {
			continue
		}
		live = append(live, id)
		apps = append(apps, value.(*types.ClientApplication).Clone())
	}
	r.order = live

	return apps, nil
}

func (r *MemoryApplicationRepository) Delete(_ context.Context, id string) (*types.ClientApplication, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, found := r.cache.Get(id)
	r.removeFromOrder(id)
	if !found {
		return nil, nil
	}
	r.cache.Delete(id)
	return value.(*types.ClientApplication).Clone(), nil
}

func (r *MemoryApplicationRepository) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Flush()
	r.order = nil
	return nil
}

func (r *MemoryApplicationRepository) removeFromOrder(id string) {
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
