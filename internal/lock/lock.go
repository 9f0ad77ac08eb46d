// Package lock serializes job runs across replicas with a Redis lease.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const runKey = "price-watch:run-lock"

// Locker grants a single holder per key for the lease duration. When
// the service runs as a single instance the locker is simply not
// configured.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
	owner  string
}

func New(url string, ttl time.Duration) (*Locker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %v", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %v", err)
	}

	return &Locker{
		client: client,
		ttl:    ttl,
		owner:  uuid.NewString(),
	}, nil
}

// Acquire attempts to take the run lease. It reports false when another
// holder owns it.
func (l *Locker) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, runKey, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %v", err)
	}
	return ok, nil
}

// Release gives up the lease if this locker still owns it. The check
// and delete are not atomic; the TTL caps how long a stale lease can
// survive.
func (l *Locker) Release(ctx context.Context) error {
	val, err := l.client.Get(ctx, runKey).Result()
	if err == redis.Nil {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to read lock: %v", err)
	}
	if val != l.owner {
		return nil
	}
	if err := l.client.Del(ctx, runKey).Err(); err != nil {
		return fmt.Errorf("failed to release lock: %v", err)
	}
	return nil
}

func (l *Locker) Close() error {
	return l.client.Close()
}
