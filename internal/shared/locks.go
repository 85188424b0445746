package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ReceivingLockKey builds the redis key guarding receiving on one purchase order.
func ReceivingLockKey(poID string) string {
	return fmt.Sprintf("procurement:po:%s:receiving", poID)
}

// releaseScript deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out short-lived exclusive locks backed by redis.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLocker returns a Locker; a nil client yields a Locker that always succeeds.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire takes key or returns ErrLocked. The returned func releases it.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context), error) {
	if l == nil || l.client == nil {
		return func(context.Context) {}, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func(ctx context.Context) {
		_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
	}, nil
}
