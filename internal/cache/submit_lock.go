package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmitLock is a SET NX guard that lets exactly one instance write a
// checkout for a given cart at a time.
type SubmitLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSubmitLock(client *redis.Client, ttl time.Duration) *SubmitLock {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SubmitLock{client: client, ttl: ttl}
}

// Acquire reports false when another holder owns key.
func (l *SubmitLock) Acquire(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, lockKey(key), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (l *SubmitLock) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{lockKey(key)}, token).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}

func lockKey(key string) string {
	return fmt.Sprintf("checkout:lock:%s", key)
}
