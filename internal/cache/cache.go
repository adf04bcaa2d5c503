package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/taskhive/taskhive/internal/breaker"
	"github.com/taskhive/taskhive/internal/metrics"
	"github.com/taskhive/taskhive/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// commands is the slice of the go-redis client the cache uses.
type commands interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Key builds the cache key for a user's task list.
func Key(userID int64) string {
	return "task:user:" + strconv.FormatInt(userID, 10)
}

// TaskCache is a read-through accelerator in front of the task store. It is
// advisory only: every failure path degrades to a miss, never to a request
// failure. Concurrent miss-fills race freely; last writer wins within the TTL.
type TaskCache struct {
	rdb commands
	br  *breaker.Breaker
	ttl time.Duration
	log *zap.Logger
}

func NewTaskCache(rdb commands, br *breaker.Breaker, ttl time.Duration, log *zap.Logger) *TaskCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &TaskCache{rdb: rdb, br: br, ttl: ttl, log: log}
}

// Get returns the cached task list and true on a hit. Breaker-open, command
// errors, and corrupt values all report a miss.
func (c *TaskCache) Get(ctx context.Context, userID int64) ([]model.Task, bool) {
	key := Key(userID)

	var raw []byte
	err := c.br.Do(ctx, func(ctx context.Context) error {
		b, err := c.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil // absence is not a dependency failure
		}
		if err != nil {
			return err
		}
		raw = b
		return nil
	})
	if err != nil {
		metrics.CacheOps.WithLabelValues("get", "error").Inc()
		c.log.Warn("cache get degraded to miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if raw == nil {
		metrics.CacheOps.WithLabelValues("get", "miss").Inc()
		return nil, false
	}

	var tasks []model.Task
	if err := json.Unmarshal(raw, &tasks); err != nil {
		metrics.CacheOps.WithLabelValues("get", "error").Inc()
		c.log.Warn("cache value corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.CacheOps.WithLabelValues("get", "hit").Inc()
	return tasks, true
}

// Set stores the task list under the user's key with the configured TTL.
// Failures are logged and swallowed.
func (c *TaskCache) Set(ctx context.Context, userID int64, tasks []model.Task) {
	key := Key(userID)

	raw, err := json.Marshal(tasks)
	if err != nil {
		c.log.Warn("cache set skipped", zap.String("key", key), zap.Error(err))
		return
	}

	err = c.br.Do(ctx, func(ctx context.Context) error {
		return c.rdb.Set(ctx, key, raw, c.ttl).Err()
	})
	if err != nil {
		metrics.CacheOps.WithLabelValues("set", "error").Inc()
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheOps.WithLabelValues("set", "ok").Inc()
}

// Invalidate removes the user's key. Deleting an absent key is a no-op, which
// keeps cascade redelivery idempotent. Failures are logged and swallowed.
func (c *TaskCache) Invalidate(ctx context.Context, userID int64) {
	key := Key(userID)

	err := c.br.Do(ctx, func(ctx context.Context) error {
		return c.rdb.Del(ctx, key).Err()
	})
	if err != nil {
		metrics.CacheOps.WithLabelValues("invalidate", "error").Inc()
		c.log.Warn("cache invalidate failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheOps.WithLabelValues("invalidate", "ok").Inc()
}
