package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/ticketing-system/ticketing-service/internal/models"
	"github.com/akylbek/ticketing-system/ticketing-service/internal/telemetry"
)

const (
	DefaultTTL   = 30 * time.Second
	pollInterval = 25 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per key across service replicas.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire blocks until the lock is held or ctx ends.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lockKey := fmt.Sprintf("%s:%s", l.prefix, key)
	token := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
		}
		if ok {
			return func() { l.release(lockKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", models.ErrLockTimeout, lockKey)
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(lockKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{lockKey}, token).Err(); err != nil {
		telemetry.Logger.Warn("Failed to release lock",
			zap.String("key", lockKey),
			zap.Error(err),
		)
	}
}
