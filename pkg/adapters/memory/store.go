package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/google/uuid"
)

// Store implements ports.CheckpointStore and ports.CheckpointLister in memory.
// Every checkpoint of a thread is retained. Safe for concurrent use.
type Store struct {
	data map[string][]domain.Checkpoint
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string][]domain.Checkpoint),
	}
}

// Put appends a new checkpoint to the thread's lineage.
func (s *Store) Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lineage := s.data[threadID]
	var version int64 = 1
	if n := len(lineage); n > 0 {
		version = lineage[n-1].Version + 1
	}

	cp := domain.Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Version:   version,
		State:     copyState(state),
		CreatedAt: time.Now().UTC(),
	}
	s.data[threadID] = append(lineage, cp)
	return copyCheckpoint(cp), nil
}

// Get returns the latest state of a thread.
func (s *Store) Get(ctx context.Context, threadID string) (domain.State, error) {
	cp, err := s.GetCheckpoint(ctx, threadID)
	if err != nil {
		return domain.State{}, err
	}
	return cp.State, nil
}

// GetCheckpoint returns the latest checkpoint of a thread.
func (s *Store) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage := s.data[threadID]
	if len(lineage) == 0 {
		return domain.Checkpoint{}, domain.ErrCheckpointNotFound
	}
	// Copy on read so callers can't mutate the stored snapshot.
	return copyCheckpoint(lineage[len(lineage)-1]), nil
}

// ListCheckpoints returns the thread's lineage, oldest first.
func (s *Store) ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lineage, ok := s.data[threadID]
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	out := make([]domain.Checkpoint, len(lineage))
	for i, cp := range lineage {
		out[i] = copyCheckpoint(cp)
	}
	return out, nil
}

// Delete removes the thread's lineage.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, threadID)
	return nil
}

// List returns all thread IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func copyCheckpoint(cp domain.Checkpoint) domain.Checkpoint {
	cp.State = copyState(cp.State)
	return cp
}

// copyState isolates the stored snapshot, nested maps and slices included,
// the same way a serializing store would.
func copyState(s domain.State) domain.State {
	out := domain.State{
		Messages: slices.Clone(s.Messages),
		Values:   make(map[string]any, len(s.Values)),
	}
	if out.Messages == nil {
		out.Messages = []domain.Message{}
	}
	for k, v := range s.Values {
		out.Values[k] = deepCopy(v)
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
