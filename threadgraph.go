package threadgraph

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/aretw0/threadgraph/internal/runtime"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/persistence/middleware"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/session"
)

// Engine is the high-level entry point for the threadgraph library.
// It wraps the internal runtime and provides a simplified API for consumers.
type Engine struct {
	runtime     *runtime.Engine
	graph       *graph.Graph
	store       ports.CheckpointStore
	middlewares []middleware.Middleware
	schema      *domain.Schema
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	guard       *session.Manager
	guardOpts   []session.Option
	Name        string
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLifecycleHooks registers observability hooks. It may be given more than once.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = domain.JoinHooks(e.hooks, hooks)
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithSchema sets the reducers for named state fields.
func WithSchema(schema domain.Schema) Option {
	return func(e *Engine) {
		e.schema = &schema
	}
}

// WithStoreMiddleware wraps the checkpoint store, first listed outermost.
func WithStoreMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Engine) {
		e.middlewares = append(e.middlewares, mws...)
	}
}

// WithTurnPolicy decides whether a second turn on a busy thread waits or is rejected.
func WithTurnPolicy(p session.Policy) Option {
	return func(e *Engine) {
		e.guardOpts = append(e.guardOpts, session.WithPolicy(p))
	}
}

// WithLocker extends the one-turn-per-thread guarantee across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.guardOpts = append(e.guardOpts, session.WithLocker(locker), session.WithLockTTL(ttl))
	}
}

// WithGuard shares a turn guard between engines. Overrides WithTurnPolicy and WithLocker.
func WithGuard(guard *session.Manager) Option {
	return func(e *Engine) {
		e.guard = guard
	}
}

// WithName labels the engine in logs and introspection.
func WithName(name string) Option {
	return func(e *Engine) {
		e.Name = name
	}
}

// New initializes an Engine for a compiled graph backed by store.
func New(g *graph.Graph, store ports.CheckpointStore, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, errors.New("graph is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}

	eng := &Engine{graph: g}
	for _, opt := range opts {
		opt(eng)
	}

	if eng.logger == nil {
		eng.logger = logging.NewNop()
	}
	if eng.Name != "" {
		eng.logger = eng.logger.With("graph", eng.Name)
	}

	eng.store = middleware.Chain(store, eng.middlewares...)

	if eng.guard == nil {
		guardOpts := append([]session.Option{session.WithLogger(eng.logger)}, eng.guardOpts...)
		eng.guard = session.NewManager(guardOpts...)
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLifecycleHooks(eng.hooks),
		runtime.WithLogger(eng.logger),
		runtime.WithGuard(eng.guard),
	}
	if eng.schema != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithSchema(*eng.schema))
	}

	eng.runtime = runtime.NewEngine(g, eng.store, runtimeOpts...)
	return eng, nil
}

// RunTurn merges input into the thread's state, runs the graph and streams
// assistant fragments. The sequence runs lazily and may be ranged over once;
// a failure is delivered as the final (zero Fragment, error) pair. Breaking
// out of the loop cancels the turn without persisting it.
func (e *Engine) RunTurn(ctx context.Context, threadID string, input domain.Update) iter.Seq2[domain.Fragment, error] {
	return e.runtime.RunTurn(ctx, threadID, input)
}

// Send runs a turn with a single user message.
func (e *Engine) Send(ctx context.Context, threadID, content string) iter.Seq2[domain.Fragment, error] {
	return e.runtime.RunTurn(ctx, threadID, domain.Input(content))
}

// Invoke runs a turn to completion and returns the streamed reply text.
func (e *Engine) Invoke(ctx context.Context, threadID string, input domain.Update) (string, error) {
	var reply []byte
	for frag, err := range e.runtime.RunTurn(ctx, threadID, input) {
		if err != nil {
			return string(reply), err
		}
		reply = append(reply, frag.Content()...)
	}
	return string(reply), nil
}

// GetState returns the thread's latest state; unknown threads have an empty state.
func (e *Engine) GetState(ctx context.Context, threadID string) (domain.State, error) {
	return e.runtime.GetState(ctx, threadID)
}

// GetCheckpoint returns the latest checkpoint with its version.
func (e *Engine) GetCheckpoint(ctx context.Context, threadID string) (domain.Checkpoint, error) {
	return e.runtime.GetCheckpoint(ctx, threadID)
}

// SeedIfEmpty installs archived history when the thread has no messages yet.
func (e *Engine) SeedIfEmpty(ctx context.Context, threadID string, history []domain.HistoryEntry) (bool, error) {
	return e.runtime.SeedIfEmpty(ctx, threadID, history)
}

// UpdateState merges an update outside of a turn and writes a checkpoint.
func (e *Engine) UpdateState(ctx context.Context, threadID string, update domain.Update) (domain.Checkpoint, error) {
	return e.runtime.UpdateState(ctx, threadID, update)
}

// History returns the retained checkpoints of a thread, oldest first.
func (e *Engine) History(ctx context.Context, threadID string) ([]domain.Checkpoint, error) {
	return e.runtime.History(ctx, threadID)
}

// Delete removes a thread's checkpoints.
func (e *Engine) Delete(ctx context.Context, threadID string) error {
	return e.runtime.Delete(ctx, threadID)
}

// Threads lists the threads that have checkpoints.
func (e *Engine) Threads(ctx context.Context) ([]string, error) {
	return e.runtime.Threads(ctx)
}

// Graph returns the compiled graph for visualization or introspection tools.
func (e *Engine) Graph() *graph.Graph {
	return e.graph
}

// Store returns the (possibly wrapped) checkpoint store.
func (e *Engine) Store() ports.CheckpointStore {
	return e.store
}

var _ ports.Engine = (*Engine)(nil)
