package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
)

var (
	// ErrLockAcquire is returned when the lock cannot be acquired.
	ErrLockAcquire = errors.New("failed to acquire distributed lock")
)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// refreshScript extends the TTL only while the key still holds our token.
var refreshScript = backend.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Locker implements ports.DistributedLocker and ports.TryLocker using Redis.
type Locker struct {
	client   *backend.Client
	prefix   string
	interval time.Duration
}

// NewLocker creates a new Redis locker.
func NewLocker(client *backend.Client, prefix string) *Locker {
	return &Locker{
		client:   client,
		prefix:   prefix,
		interval: 100 * time.Millisecond,
	}
}

func (l *Locker) key(key string) string {
	return l.prefix + "lock:" + key
}

// TryLock makes a single SET NX PX attempt.
// A held lock is refreshed every ttl/3 until it is unlocked or ctx ends, so a
// turn that outlives ttl keeps its exclusion. The ttl only bounds how long a
// crashed holder blocks others.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, bool, error) {
	lockKey := l.key(key)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis error acquiring lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(ctx, stop, lockKey, token, ttl)
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		return unlockScript.Run(ctx, l.client, []string{lockKey}, token).Err()
	}, true, nil
}

// keepAlive extends the lock until stop is closed, ctx ends or the lock is lost.
func (l *Locker) keepAlive(ctx context.Context, stop <-chan struct{}, lockKey, token string, ttl time.Duration) {
	interval := ttl / 3
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		held, err := refreshScript.Run(ctx, l.client, []string{lockKey}, token, ttl.Milliseconds()).Int64()
		switch {
		case errors.Is(err, backend.ErrClosed):
			return
		case err != nil:
			// Retried on the next tick; the current TTL still holds.
			continue
		case held == 0:
			return
		}
	}
}

// Lock polls TryLock until it succeeds or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		unlock, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return unlock, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}
