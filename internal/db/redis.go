package db

import (
	"context"
	"time"

	"github.com/taskhive/taskhive/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultPingTimeout = 5 * time.Second

// NewRedis builds the cache client and pings it once. The client is a
// process-wide singleton safe for concurrent use; callers must treat the
// cache as advisory and never fail a request on its errors.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultPingTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: dialTimeout,
	})
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return rdb, nil
}
