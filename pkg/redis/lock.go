package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another owner holds the lock
var ErrLockHeld = errors.New("lock is held by another owner")

// ErrLockLost is returned when releasing or extending a lock we no longer own
var ErrLockLost = errors.New("lock is no longer owned")

// releaseScript deletes the key only when it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript refreshes the TTL only when the key still holds our token
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Lock is a single-owner mutex stored under one key
type Lock struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
}

// NewLock creates a lock handle. Token identifies the owner, typically a run id.
func (c *Client) NewLock(name, token string, ttl time.Duration) *Lock {
	return &Lock{
		client: c,
		key:    c.Key("lock", name),
		token:  token,
		ttl:    ttl,
	}
}

// Key returns the full Redis key
func (l *Lock) Key() string {
	return l.key
}

// Acquire takes the lock or returns ErrLockHeld
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Extend pushes the expiry out by the lock TTL
func (l *Lock) Extend(ctx context.Context) error {
	n, err := l.client.Run(ctx, extendScript, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

// Release frees the lock if we still own it
func (l *Lock) Release(ctx context.Context) error {
	n, err := l.client.Run(ctx, releaseScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}
