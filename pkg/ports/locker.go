package ports

import (
	"context"
	"time"
)

// UnlockFunc is a function that releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker defines the interface for distributed concurrency control.
// It allows the turn guard to coordinate access to a thread across multiple instances (replicas).
type DistributedLocker interface {
	// Lock acquires a distributed lock for the given key (e.g., thread ID).
	// It blocks until the lock is acquired or the context is canceled.
	// The TTL bounds how long the lock survives a crashed holder.
	// Returns an UnlockFunc that MUST be called to release the lock.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// TryLocker is implemented by lockers that can fail fast instead of waiting.
type TryLocker interface {
	// TryLock makes a single acquisition attempt. ok is false when the lock is held elsewhere.
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock UnlockFunc, ok bool, err error)
}
