package redis

import (
	"context"
	"fmt"
	"time"

	"detectmesh/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedisClient dials the store backing the distributed room registry and
// verifies connectivity before anything is built on top of it. The ping is
// retried briefly so a broker starting alongside its Redis container does
// not fail on a race it would win a second later.
func NewRedisClient(address, password string, db, poolSize int, logger *zap.SugaredLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := retry.Do(ctx, retry.Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", address, err)
	}

	logger.Infow("connected to redis", "address", address, "db", db, "pool_size", poolSize)
	return client, nil
}

// CloseRedisClient closes the client, tolerating a nil handle so shutdown
// paths can call it unconditionally.
func CloseRedisClient(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
