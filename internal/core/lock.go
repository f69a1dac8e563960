package core

import (
	"context"
	"fmt"
	"time"

	"uplight/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RoundLock keeps replicas from running the same round concurrently.
// Acquire returns ok=false when another holder owns the lock.
type RoundLock interface {
	Acquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// NoopLock always grants the lock. Used for single-replica deployments.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock is a SET NX PX lock with token-checked release.
type RedisLock struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisLock connects to Redis and verifies the connection.
func NewRedisLock(ctx context.Context, cfg config.RedisConfig) (*RedisLock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info().Str("addr", cfg.Addr).Int("db", cfg.DB).Msg("Redis round lock connected")
	return NewRedisLockWithClient(client, cfg.TTL), nil
}

// NewRedisLockWithClient wraps an existing client.
func NewRedisLockWithClient(client redis.UniversalClient, ttl time.Duration) *RedisLock {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLock{client: client, prefix: "uplight:round:", ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context, name string) (func(), bool, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		// The round context may be done by now.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			log.Warn().Str("lock", key).Err(err).Msg("Failed to release round lock")
		}
	}
	return release, true, nil
}

func (l *RedisLock) Close() error {
	return l.client.Close()
}
