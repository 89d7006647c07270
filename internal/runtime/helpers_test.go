package runtime_test

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/aretw0/threadgraph/internal/runtime"
	"github.com/aretw0/threadgraph/pkg/adapters/memory"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/dsl"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps the memory store with injectable failures.
type flakyStore struct {
	*memory.Store
	getErr error
	putErr error
	puts   int
}

func (s *flakyStore) Get(ctx context.Context, threadID string) (domain.State, error) {
	if s.getErr != nil {
		return domain.State{}, s.getErr
	}
	return s.Store.Get(ctx, threadID)
}

func (s *flakyStore) Put(ctx context.Context, threadID string, st domain.State) (domain.Checkpoint, error) {
	s.puts++
	if s.putErr != nil {
		return domain.Checkpoint{}, s.putErr
	}
	return s.Store.Put(ctx, threadID, st)
}

// reply streams content word by word and returns it as one assistant message.
func reply(content string, words ...string) graph.NodeFunc {
	return func(ctx context.Context, _ domain.State, out graph.Emitter) (domain.Update, error) {
		for _, w := range words {
			if err := out.Emit(ctx, domain.Chunk{Message: domain.AssistantMessage(w)}); err != nil {
				return domain.Update{}, err
			}
		}
		return domain.Update{Messages: []domain.Message{domain.AssistantMessage(content)}}, nil
	}
}

func singleNode(t *testing.T, fn graph.NodeFunc, opts ...graph.Option) *graph.Graph {
	t.Helper()
	b := dsl.New()
	b.Add("agent").Do(fn).Terminal()
	g, err := b.Build(opts...)
	require.NoError(t, err)
	return g
}

// collect drains a turn, returning the fragment contents and the final error.
func collect(seq iter.Seq2[domain.Fragment, error]) ([]string, error) {
	var out []string
	for frag, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, frag.Content())
	}
	return out, nil
}

func contents(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

var errBoom = errors.New("boom")

func newEngine(g *graph.Graph, opts ...runtime.Option) (*runtime.Engine, *memory.Store) {
	store := memory.NewStore()
	return runtime.NewEngine(g, store, opts...), store
}
