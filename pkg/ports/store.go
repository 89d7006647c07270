package ports

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// CheckpointStore defines the interface for persisting thread state between turns.
// This is what allows a conversation to be paused and resumed across restarts.
//
// The store does not serialize concurrent writers for the same thread;
// callers are expected to hold the thread's turn guard while writing.
type CheckpointStore interface {
	// Get returns the state of the latest checkpoint for a thread.
	// Returns domain.ErrCheckpointNotFound if the thread has none.
	Get(ctx context.Context, threadID string) (domain.State, error)

	// GetCheckpoint returns the latest checkpoint including its version metadata.
	// Returns domain.ErrCheckpointNotFound if the thread has none.
	GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error)

	// Put writes a new checkpoint whose version is one greater than the latest.
	Put(ctx context.Context, threadID string, state domain.State) (domain.Checkpoint, error)

	// Delete removes every checkpoint of a thread.
	Delete(ctx context.Context, threadID string) error

	// List returns the IDs of every thread that has at least one checkpoint.
	List(ctx context.Context) ([]string, error)
}

// CheckpointLister is implemented by stores that keep the full lineage of a thread.
type CheckpointLister interface {
	// ListCheckpoints returns every retained checkpoint, oldest first.
	ListCheckpoints(ctx context.Context, threadID string) ([]domain.Checkpoint, error)
}

// ThreadArchive stores the session layer's thread records, including the
// opaque chat history used to seed state on resume.
type ThreadArchive interface {
	// GetThread returns domain.ErrThreadNotFound when the record does not exist.
	GetThread(ctx context.Context, threadID string) (domain.ThreadRecord, error)
	SaveThread(ctx context.Context, rec domain.ThreadRecord) error
	DeleteThread(ctx context.Context, threadID string) error
	ListThreads(ctx context.Context, userID string) ([]domain.ThreadRecord, error)
}
