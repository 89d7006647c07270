package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed turn lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// Policy decides what happens when a turn arrives while another is in flight.
type Policy int

const (
	// PolicyQueue waits for the running turn to finish (or ctx to end).
	PolicyQueue Policy = iota
	// PolicyReject fails fast with *domain.ConcurrentTurnError.
	PolicyReject
)

func (p Policy) String() string {
	switch p {
	case PolicyQueue:
		return "queue"
	case PolicyReject:
		return "reject"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy maps "queue" and "reject" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "queue":
		return PolicyQueue, nil
	case "reject":
		return PolicyReject, nil
	default:
		return PolicyQueue, fmt.Errorf("unknown turn policy %q", s)
	}
}

// lockEntry holds the turn slot and the reference count.
// The slot is a one-element channel so waiting can honour ctx.
type lockEntry struct {
	slot chan struct{}
	refs int
}

// Manager guarantees at most one in-flight turn per thread.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker ports.DistributedLocker // Optional distributed locker
	policy Policy
	ttl    time.Duration
	logger *slog.Logger // Logger for internal events (like deferred errors)
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithPolicy selects queueing or rejection of concurrent turns.
func WithPolicy(p Policy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLockTTL sets the TTL passed to the distributed locker. Lockers that renew
// held locks (the redis locker does) keep a longer turn covered; with one that
// does not, a turn running past ttl loses cross-process exclusion.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new turn guard.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:  make(map[string]*lockEntry),
		policy: PolicyQueue,
		ttl:    DefaultLockTTL,
		logger: logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the configured policy.
func (m *Manager) Policy() Policy {
	return m.policy
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST call release(threadID) once done with the entry.
func (m *Manager) acquire(threadID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		m.locks[threadID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[threadID]
	if !exists {
		return // Should not happen if paired correctly
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, threadID)
	}
}

// Acquire claims the turn slot for a thread. The returned release func MUST be
// called exactly once; extra calls are ignored.
func (m *Manager) Acquire(ctx context.Context, threadID string) (release func(), err error) {
	entry := m.acquire(threadID)

	switch m.policy {
	case PolicyReject:
		select {
		case entry.slot <- struct{}{}:
		default:
			m.release(threadID)
			return nil, &domain.ConcurrentTurnError{ThreadID: threadID}
		}
	default:
		select {
		case entry.slot <- struct{}{}:
		case <-ctx.Done():
			m.release(threadID)
			return nil, ctx.Err()
		}
	}

	local := func() {
		<-entry.slot
		m.release(threadID)
	}

	unlock, err := m.lockDistributed(ctx, threadID)
	if err != nil {
		local()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if unlock != nil {
				// The turn's ctx may already be cancelled; unlocking must still happen.
				if err := unlock(context.WithoutCancel(ctx)); err != nil {
					m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
						"thread_id", threadID,
						"err", err,
					)
				}
			}
			local()
		})
	}, nil
}

func (m *Manager) lockDistributed(ctx context.Context, threadID string) (ports.UnlockFunc, error) {
	if m.locker == nil {
		return nil, nil
	}

	if m.policy == PolicyReject {
		if tl, ok := m.locker.(ports.TryLocker); ok {
			unlock, acquired, err := tl.TryLock(ctx, threadID, m.ttl)
			if err != nil {
				return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
			}
			if !acquired {
				return nil, &domain.ConcurrentTurnError{ThreadID: threadID}
			}
			return unlock, nil
		}
	}

	unlock, err := m.locker.Lock(ctx, threadID, m.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	return unlock, nil
}

// WithLock executes a function while holding the thread's turn slot.
func (m *Manager) WithLock(ctx context.Context, threadID string, fn func(context.Context) error) error {
	release, err := m.Acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// Active reports how many threads currently have a holder or waiter.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
