package database

import (
	"context"
	"fmt"
	"time"

	"portal-workers/internal/common/config"
	"portal-workers/internal/common/errors"

	"github.com/redis/go-redis/v9"
)

// RedisClient holds the connection used by the question cache and the redis
// document store. Each change feed subscription takes one extra connection
// out of the pool for as long as a form session is open.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds the client. Like NewPostgres it does not dial.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, errors.NewDatabaseConnectionFailedError(fmt.Errorf("redis address is empty"))
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: poolSize / 2,
	})
	return &RedisClient{Client: rdb}, nil
}

func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return errors.NewDatabaseConnectionFailedError(fmt.Errorf("redis ping failed: %w", err))
	}
	return nil
}

func (c *RedisClient) Close() error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
