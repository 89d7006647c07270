package ports

import (
	"context"
	"iter"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Engine is the surface exposed to session layers and transports (HTTP, MCP, CLI).
// Every call is scoped by an explicit thread ID; the engine keeps no session state.
type Engine interface {
	// RunTurn merges input into the thread's state, walks the graph and streams
	// assistant fragments. The sequence is single-use; errors arrive as the final element.
	RunTurn(ctx context.Context, threadID string, input domain.Update) iter.Seq2[domain.Fragment, error]

	// GetState returns the latest state, or an empty state for unknown threads.
	GetState(ctx context.Context, threadID string) (domain.State, error)

	// GetCheckpoint returns the latest checkpoint with its version.
	GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error)

	// SeedIfEmpty installs archived history when the thread has no messages yet.
	SeedIfEmpty(ctx context.Context, threadID string, history []domain.HistoryEntry) (bool, error)
}
