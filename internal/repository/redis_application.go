package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultRedisPrefix = "batch-registry"
	maxClearAttempts   = 5
)

// RedisApplicationRepository shares registrations between server replicas.
// GETSET makes the new-or-refreshed decision atomic across processes.
type RedisApplicationRepository struct {
	client *redis.Client
	logger *logrus.Logger
	prefix string
	ttl    time.Duration
}

func NewRedisApplicationRepository(client *redis.Client, logger *logrus.Logger, prefix string, ttl time.Duration) *RedisApplicationRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisApplicationRepository{
		client: client,
		logger: logger,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r *RedisApplicationRepository) appKey(id string) string {
	return fmt.Sprintf("%s:app:%s", r.prefix, id)
}

func (r *RedisApplicationRepository) indexKey() string {
	return r.prefix + ":apps"
}

func (r *RedisApplicationRepository) Save(ctx context.Context, app *types.ClientApplication) (*types.ClientApplication, error) {
	data, err := json.Marshal(app)
	if err != nil {
		return nil, fmt.Errorf("failed to encode application %s: %w", app.ID, err)
	}

	key := r.appKey(app.ID)
	pipe := r.client.TxPipeline()
	getSet := pipe.GetSet(ctx, key, data)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	pipe.ZAddNX(ctx, r.indexKey(), redis.Z{
		Score:  float64(time.Now().UnixMicro()),
		Member: app.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to save application %s: %w", app.ID, err)
	}

	previous, err := getSet.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read previous application %s: %w", app.ID, err)
	}

	return decodeApplication(previous)
}

func (r *RedisApplicationRepository) Find(ctx context.Context, id string) (*types.ClientApplication, error) {
	data, err := r.client.Get(ctx, r.appKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application %s: %w", id, err)
	}
	return decodeApplication(data)
}

func (r *RedisApplicationRepository) FindAll(ctx context.Context) ([]*types.ClientApplication, error) {
	ids, err := r.client.ZRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list application ids: %w", err)
	}
	if len(ids) == 0 {
		return []*types.ClientApplication{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.appKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}

	apps := make([]*types.ClientApplication, 0, len(values))
	var stale []interface{}
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		app, err := decodeApplication([]byte(raw))
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	if len(stale) > 0 {
		if err := r.client.ZRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			r.logger.WithError(err).Warn("Failed to prune expired application ids")
		}
	}

	return apps, nil
}

func (r *RedisApplicationRepository) Delete(ctx context.Context, id string) (*types.ClientApplication, error) {
	pipe := r.client.TxPipeline()
	getDel := pipe.GetDel(ctx, r.appKey(id))
	pipe.ZRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to delete application %s: %w", id, err)
	}

	data, err := getDel.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read deleted application %s: %w", id, err)
	}
	return decodeApplication(data)
}

// Clear removes every indexed application and the index under WATCH on the
// index key. A registration that lands between reading the index and the
// delete aborts the transaction, and the clear starts over.
func (r *RedisApplicationRepository) Clear(ctx context.Context) error {
	index := r.indexKey()
	clearIndexed := func(tx *redis.Tx) error {
		ids, err := tx.ZRange(ctx, index, 0, -1).Result()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(ids)+1)
		for _, id := range ids {
			keys = append(keys, r.appKey(id))
		}
		keys = append(keys, index)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= maxClearAttempts; attempt++ {
		err := r.client.Watch(ctx, clearIndexed, index)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to clear applications: %w", err)
		}
		r.logger.WithField("attempt", attempt).Debug("Application index changed during clear, retrying")
	}
	return fmt.Errorf("failed to clear applications: index kept changing after %d attempts", maxClearAttempts)
}

func decodeApplication(data []byte) (*types.ClientApplication, error) {
	var app types.ClientApplication
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to decode application: %w", err)
	}
	return &app, nil
}
