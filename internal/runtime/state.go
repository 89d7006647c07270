package runtime

import (
	"context"
	"errors"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// GetState returns the thread's latest state. Unknown threads yield an empty state.
func (e *Engine) GetState(ctx context.Context, threadID string) (domain.State, error) {
	return e.load(ctx, threadID)
}

// GetCheckpoint returns the latest checkpoint, or domain.ErrCheckpointNotFound.
func (e *Engine) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	cp, err := e.store.GetCheckpoint(ctx, threadID)
	if err != nil && !errors.Is(err, domain.ErrCheckpointNotFound) {
		return domain.Checkpoint{}, &domain.PersistenceError{ThreadID: threadID, Op: domain.OpLoad, Err: err}
	}
	return cp, err
}

// History returns every retained checkpoint of the thread, oldest first.
// Stores that only keep the latest checkpoint report errors.ErrUnsupported.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	lister, ok := e.store.(ports.CheckpointLister)
	if !ok {
		return nil, errors.ErrUnsupported
	}
	return lister.ListCheckpoints(ctx, threadID)
}

// SeedIfEmpty installs archived history on a thread whose transcript is empty.
// It reports whether anything was written; a thread that already has messages
// is left untouched, which makes repeated resumes harmless.
func (e *Engine) SeedIfEmpty(ctx context.Context, threadID string, history []domain.HistoryEntry) (bool, error) {
	seeded := false
	err := e.guard.WithLock(ctx, threadID, func(ctx context.Context) error {
		state, err := e.load(ctx, threadID)
		if err != nil {
			return err
		}
		if len(state.Messages) > 0 || len(history) == 0 {
			return nil
		}

		state.Messages = domain.AppendMessages(nil, domain.MessagesFromHistory(history))
		cp, err := e.store.Put(ctx, threadID, state)
		if err != nil {
			return &domain.PersistenceError{ThreadID: threadID, Op: domain.OpSave, Err: err}
		}
		e.emitCheckpoint(ctx, cp)
		e.logger.Info("thread seeded from archive", "thread_id", threadID, "messages", len(history), "version", cp.Version)
		seeded = true
		return nil
	})
	return seeded, err
}

// UpdateState merges an update into the latest state outside of a turn,
// using the engine's reducers, and writes a new checkpoint.
func (e *Engine) UpdateState(ctx context.Context, threadID string, update domain.Update) (domain.Checkpoint, error) {
	var cp domain.Checkpoint
	err := e.guard.WithLock(ctx, threadID, func(ctx context.Context) error {
		state, err := e.load(ctx, threadID)
		if err != nil {
			return err
		}
		cp, err = e.store.Put(ctx, threadID, e.schema.Apply(state, update))
		if err != nil {
			return &domain.PersistenceError{ThreadID: threadID, Op: domain.OpSave, Err: err}
		}
		e.emitCheckpoint(ctx, cp)
		return nil
	})
	return cp, err
}

// Delete drops the thread's checkpoints.
func (e *Engine) Delete(ctx context.Context, threadID string) error {
	return e.guard.WithLock(ctx, threadID, func(ctx context.Context) error {
		return e.store.Delete(ctx, threadID)
	})
}

// Threads lists the threads known to the store.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	return e.store.List(ctx)
}

var _ ports.Engine = (*Engine)(nil)
