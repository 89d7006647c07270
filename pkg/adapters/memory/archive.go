package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Archive implements ports.ThreadArchive in memory.
type Archive struct {
	mu      sync.RWMutex
	threads map[string]domain.ThreadRecord
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{threads: make(map[string]domain.ThreadRecord)}
}

func (a *Archive) GetThread(ctx context.Context, threadID string) (domain.ThreadRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.threads[threadID]
	if !ok {
		return domain.ThreadRecord{}, domain.ErrThreadNotFound
	}
	return rec, nil
}

func (a *Archive) SaveThread(ctx context.Context, rec domain.ThreadRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.threads[rec.ID] = rec
	return nil
}

func (a *Archive) DeleteThread(ctx context.Context, threadID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.threads, threadID)
	return nil
}

// ListThreads returns the records of userID, or all records when userID is empty,
// most recently updated first.
func (a *Archive) ListThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]domain.ThreadRecord, 0, len(a.threads))
	for _, rec := range a.threads {
		if userID == "" || rec.UserID == userID {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(x, y domain.ThreadRecord) int {
		if c := y.UpdatedAt.Compare(x.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return out, nil
}
