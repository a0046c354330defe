// Package lock serializes one-off startup work, such as schema migrations,
// across server replicas with a Redis lock.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a lock key is already held.
var ErrLockNotAcquired = errors.New("lock not acquired")

const (
	defaultPrefix = "sqlexec:lock:"
	defaultPoll   = 250 * time.Millisecond
)

// Locker hands out locks stored under a key prefix.
type Locker struct {
	client redis.UniversalClient
	prefix string
	poll   time.Duration
}

// Lock is a held lock.
type Lock struct {
	client redis.UniversalClient
	key    string
	value  string
}

// NewLocker returns a Locker. An empty prefix selects "sqlexec:lock:".
func NewLocker(client redis.UniversalClient, prefix string) *Locker {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Locker{
		client: client,
		prefix: prefix,
		poll:   defaultPoll,
	}
}

// TryAcquire takes the lock for key if it is free. The lock expires after ttl
// unless released earlier.
func (l *Locker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	fullKey := l.prefix + key
	value, err := token()
	if err != nil {
		return nil, err
	}

	ok, err := l.client.SetNX(ctx, fullKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", fullKey, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return &Lock{client: l.client, key: fullKey, value: value}, nil
}

// Acquire waits until the lock for key is free or ctx is done.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		lk, err := l.TryAcquire(ctx, key, ttl)
		if !errors.Is(err, ErrLockNotAcquired) {
			return lk, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// WithLock runs fn while holding the lock for key.
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	lk, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		// The lock expires on its own if release fails.
		_ = lk.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end`

// Release releases the lock. It is safe to call more than once.
func (l *Lock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Err()
}

func token() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
