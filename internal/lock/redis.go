package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can block a key.
	DefaultLockTTL = 60 * time.Second
	// DefaultKeyPrefix namespaces relay lock keys in Redis.
	DefaultKeyPrefix = "leadrelay:lock:"
)

// RedisLocker is a Locker shared by every relay replica using one Redis.
type RedisLocker struct {
	client *redis.Client
	rs     *redsync.Redsync
	ttl    time.Duration
	prefix string
}

// Compile-time check that RedisLocker implements Locker.
var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to redisURL (redis:// or rediss://) and verifies
// the connection with a ping.
func NewRedisLocker(redisURL string, ttl time.Duration) (*RedisLocker, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("Redis URL must be provided")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	slog.Info("RedisLocker connected", "addr", opts.Addr, "ttl", ttl)
	return &RedisLocker{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
		ttl:    ttl,
		prefix: DefaultKeyPrefix,
	}, nil
}

// Lock acquires the distributed mutex for key, retrying until ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	mutex := r.rs.NewMutex(r.prefix+key,
		redsync.WithExpiry(r.ttl),
		redsync.WithTries(64),
		redsync.WithRetryDelay(100*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := mutex.UnlockContext(unlockCtx); err != nil {
			slog.Error("RedisLocker failed to unlock mutex", "key", key, "error", err)
		}
	}, nil
}

// Close closes the Redis client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
