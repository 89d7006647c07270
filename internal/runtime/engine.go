package runtime

import (
	"log/slog"
	"time"

	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/session"
)

// Engine interprets a compiled graph against a checkpoint store.
// It holds no per-thread state: every call names its thread explicitly.
type Engine struct {
	graph  *graph.Graph
	store  ports.CheckpointStore
	schema domain.Schema
	guard  *session.Manager
	hooks  domain.LifecycleHooks
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger configures the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability callbacks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.JoinHooks(e.hooks, hooks)
	}
}

// WithSchema sets the reducers used to merge node updates.
func WithSchema(schema domain.Schema) Option {
	return func(e *Engine) {
		e.schema = schema
	}
}

// WithGuard sets the per-thread turn guard. Sharing a guard between engines
// that use the same store keeps their turns serialized.
func WithGuard(guard *session.Manager) Option {
	return func(e *Engine) {
		if guard != nil {
			e.guard = guard
		}
	}
}

// NewEngine creates an engine for a compiled graph and a store.
func NewEngine(g *graph.Graph, store ports.CheckpointStore, opts ...Option) *Engine {
	e := &Engine{
		graph:  g,
		store:  store,
		schema: domain.MessagesSchema(),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.guard == nil {
		e.guard = session.NewManager(session.WithLogger(e.logger))
	}
	return e
}

// Graph returns the compiled graph the engine runs.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Store returns the checkpoint store.
func (e *Engine) Store() ports.CheckpointStore {
	return e.store
}
