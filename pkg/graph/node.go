package graph

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// Sentinel node names marking the entry and exit of every graph.
const (
	Start = "__start__"
	End   = "__end__"
)

// DefaultMaxSteps bounds the number of node invocations in a single turn.
const DefaultMaxSteps = 25

// Emitter forwards incremental output produced while a node runs.
// Emit returns an error once the caller has stopped consuming the turn;
// nodes should abandon their work when that happens.
// Emit must not be called concurrently or after the node has returned.
type Emitter interface {
	Emit(ctx context.Context, chunk domain.Chunk) error
}

// NodeFunc is a computation step. It receives a snapshot of the current state
// and returns the partial state to merge.
type NodeFunc func(ctx context.Context, state domain.State, out Emitter) (domain.Update, error)

// RouterFunc picks the next node for a conditional edge.
type RouterFunc func(ctx context.Context, state domain.State) (string, error)

// Edge is an unconditional transition.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Branch is a conditional transition. Destinations lists every node the router may return.
type Branch struct {
	From         string     `json:"from"`
	Destinations []string   `json:"destinations"`
	Router       RouterFunc `json:"-"`
}

// DiscardEmitter drops every chunk. Useful for calling nodes outside a turn.
var DiscardEmitter Emitter = discard{}

type discard struct{}

func (discard) Emit(context.Context, domain.Chunk) error { return nil }
