package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a single-holder lease used to keep batch runs from overlapping
// across processes. Without Redis every Acquire succeeds.
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLock creates a lease on name, token identifies the holder
func NewLock(client *Client, prefix, name, token string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    fmt.Sprintf("%s:lock:%s", prefix, name),
		token:  token,
		ttl:    ttl,
	}
}

// Acquire takes the lease if nobody holds it
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	if !l.client.Enabled() {
		return true, nil
	}

	ok, err := l.client.Redis().SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops the lease if this holder still owns it
func (l *Lock) Release(ctx context.Context) error {
	if !l.client.Enabled() {
		return nil
	}

	if err := releaseScript.Run(ctx, l.client.Redis(), []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
