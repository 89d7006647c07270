package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aretw0/threadgraph"
	"github.com/aretw0/threadgraph/internal/adapters/file"
	"github.com/aretw0/threadgraph/internal/config"
	"github.com/aretw0/threadgraph/pkg/adapters/echo"
	"github.com/aretw0/threadgraph/pkg/adapters/loam"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/adapters/openai"
	"github.com/aretw0/threadgraph/pkg/adapters/redis"
	"github.com/aretw0/threadgraph/pkg/adapters/sqlite"
	"github.com/aretw0/threadgraph/pkg/chat"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/dsl"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/nodes"
	"github.com/aretw0/threadgraph/pkg/observability"
	"github.com/aretw0/threadgraph/pkg/persistence/middleware"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/aretw0/threadgraph/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
)

// Runtime is everything a command needs, built from one Config.
type Runtime struct {
	Config  config.Config
	Logger  *slog.Logger
	Engine  *threadgraph.Engine
	Chat    *chat.Service
	Archive ports.ThreadArchive
	Metrics *observability.Metrics

	closers []func() error
}

// Close releases the stores opened by Build.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// Build wires stores, model, graph, engine and chat service from cfg.
func Build(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(prometheus.NewRegistry()),
	}

	store, err := rt.openStore()
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	archive, err := rt.openArchive(store)
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}
	rt.Archive = archive

	model, err := NewModel(cfg.Model)
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	g, err := NewGraph(model, cfg)
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	guardOpts, err := rt.guardOptions(store)
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	opts, err := rt.engineOptions(session.NewManager(guardOpts...))
	if err != nil {
		return nil, errors.Join(err, rt.Close())
	}

	rt.Engine, err = threadgraph.New(g, store, opts...)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error initializing engine: %w", err), rt.Close())
	}

	rt.Chat = chat.NewService(rt.Engine,
		chat.WithArchive(archive),
		chat.WithLogger(logger),
		chat.WithGuard(session.NewManager(guardOpts...)),
	)
	return rt, nil
}

func (rt *Runtime) openStore() (ports.CheckpointStore, error) {
	cfg := rt.Config.Store
	switch cfg.Driver {
	case "memory":
		return memory.NewStore(), nil
	case "file":
		return file.New(cfg.Path), nil
	case "redis":
		opts := []redis.Option{redis.WithTTL(cfg.TTL)}
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		store := redis.New(cfg.RedisAddr, os.Getenv("THREADGRAPH_REDIS_PASSWORD"), 0, opts...)
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(".threadgraph", "threadgraph.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := sqlite.Open(path, sqlite.WithRetention(cfg.Retention))
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func (rt *Runtime) openArchive(store ports.CheckpointStore) (ports.ThreadArchive, error) {
	cfg := rt.Config.Archive
	switch cfg.Driver {
	case "memory":
		return memory.NewArchive(), nil
	case "sqlite":
		if cfg.Path == "" {
			if shared, ok := store.(*sqlite.Store); ok {
				return shared, nil
			}
			return nil, errors.New("archive.path is required unless the store is sqlite")
		}
		archive, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, archive.Close)
		return archive, nil
	case "loam":
		if cfg.Path == "" {
			return nil, errors.New("archive.path is required for the loam archive")
		}
		return loam.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.Driver)
	}
}

// guardOptions configures a turn guard from the engine settings. The engine
// and the chat service each get their own guard built from them.
func (rt *Runtime) guardOptions(store ports.CheckpointStore) ([]session.Option, error) {
	cfg := rt.Config
	policy, err := session.ParsePolicy(cfg.Engine.TurnPolicy)
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithLogger(rt.Logger),
		session.WithPolicy(policy),
	}
	if cfg.Engine.DistributedLock {
		rs, ok := store.(*redis.Store)
		if !ok {
			return nil, errors.New("engine.distributed_lock requires the redis store")
		}
		opts = append(opts, session.WithLocker(redis.NewLocker(rs.Client(), rs.Prefix())), session.WithLockTTL(cfg.Engine.LockTTL))
	}
	return opts, nil
}

func (rt *Runtime) engineOptions(guard *session.Manager) ([]threadgraph.Option, error) {
	cfg := rt.Config
	opts := []threadgraph.Option{
		threadgraph.WithLogger(rt.Logger),
		threadgraph.WithName(cfg.Engine.Name),
		threadgraph.WithGuard(guard),
		threadgraph.WithLifecycleHooks(rt.Metrics.Hooks()),
		threadgraph.WithLifecycleHooks(debugHooks(rt.Logger)),
	}

	// Redaction runs before encryption so masked values never reach the cipher.
	var mws []middleware.Middleware
	if len(cfg.Security.RedactFields) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Security.RedactFields))
	}
	active, fallback, err := cfg.Security.Keys()
	if err != nil {
		return nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	if len(mws) > 0 {
		opts = append(opts, threadgraph.WithStoreMiddleware(mws...))
	}
	return opts, nil
}

// NewModel creates the configured chat model.
func NewModel(cfg config.ModelConfig) (ports.ChatModel, error) {
	switch cfg.Provider {
	case "echo":
		return echo.New(), nil
	case "openai":
		return openai.New(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Name,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// NewGraph builds the single-agent conversational graph.
func NewGraph(model ports.ChatModel, cfg config.Config) (*graph.Graph, error) {
	var opts []nodes.ChatOption
	if cfg.Model.SystemPrompt != "" {
		opts = append(opts, nodes.WithSystemPrompt(cfg.Model.SystemPrompt))
	}
	if cfg.Model.Window > 0 {
		opts = append(opts, nodes.WithWindow(cfg.Model.Window))
	}
	if cfg.Model.Stream != nil && !*cfg.Model.Stream {
		opts = append(opts, nodes.WithoutStreaming())
	}

	b := dsl.New()
	b.Add("agent").Do(nodes.Chat(model, opts...)).Terminal()
	return b.Build(graph.WithMaxSteps(cfg.Engine.MaxSteps))
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("enter node", "thread_id", e.ThreadID, "node_id", e.NodeID, "step", e.Step)
		},
		OnNodeLeave: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("leave node", "thread_id", e.ThreadID, "node_id", e.NodeID,
				"fragments", e.Fragments, "duration", e.Duration.Round(time.Millisecond), "err", e.Err)
		},
		OnCheckpoint: func(ctx context.Context, e *domain.CheckpointEvent) {
			logger.Debug("checkpoint", "thread_id", e.ThreadID, "version", e.Version)
		},
	}
}
