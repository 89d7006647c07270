package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/threadgraph/internal/runtime"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_BreakCancelsTurn(t *testing.T) {
	var emitErr error
	var nodeCtxErr error
	streaming := func(ctx context.Context, _ domain.State, out graph.Emitter) (domain.Update, error) {
		for _, w := range []string{"one", "two", "three"} {
			if err := out.Emit(ctx, domain.Chunk{Message: domain.AssistantMessage(w)}); err != nil {
				emitErr = err
				nodeCtxErr = ctx.Err()
				return domain.Update{}, err
			}
		}
		return domain.Update{Messages: []domain.Message{domain.AssistantMessage("one two three")}}, nil
	}

	var outcome domain.TurnOutcome
	hooks := domain.LifecycleHooks{
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) { outcome = e.Outcome },
	}
	guard := session.NewManager(session.WithPolicy(session.PolicyReject))
	engine, store := newEngine(singleNode(t, streaming), runtime.WithGuard(guard), runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()

	var got []string
	for frag, err := range engine.RunTurn(ctx, "t1", domain.Input("hi")) {
		require.NoError(t, err)
		got = append(got, frag.Content())
		break
	}

	assert.Equal(t, []string{"one"}, got)
	assert.ErrorIs(t, emitErr, domain.ErrTurnAbandoned)
	assert.ErrorIs(t, nodeCtxErr, context.Canceled, "the node sees a cancelled context")
	assert.Equal(t, domain.OutcomeCancelled, outcome)

	_, err := store.Get(ctx, "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound, "an abandoned turn is not persisted")
	assert.Equal(t, 0, guard.Active(), "the turn guard is released before the range returns")

	// The thread is immediately usable again, even under the reject policy.
	_, err = collect(engine.RunTurn(ctx, "t1", domain.Input("again")))
	require.NoError(t, err)
}

func TestEngine_NodeIgnoringAbandonIsNotPersisted(t *testing.T) {
	stubborn := func(ctx context.Context, _ domain.State, out graph.Emitter) (domain.Update, error) {
		_ = out.Emit(ctx, domain.Chunk{Message: domain.AssistantMessage("a")})
		_ = out.Emit(ctx, domain.Chunk{Message: domain.AssistantMessage("b")})
		return domain.Update{Messages: []domain.Message{domain.AssistantMessage("ab")}}, nil
	}
	engine, store := newEngine(singleNode(t, stubborn))

	for range engine.RunTurn(context.Background(), "t1", domain.Input("hi")) {
		break
	}

	_, err := store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_CallerContextCancelled(t *testing.T) {
	waiting := func(ctx context.Context, _ domain.State, _ graph.Emitter) (domain.Update, error) {
		<-ctx.Done()
		return domain.Update{}, ctx.Err()
	}
	engine, store := newEngine(singleNode(t, waiting))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := collect(engine.RunTurn(ctx, "t1", domain.Input("hi")))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_ConsumerPanicPropagates(t *testing.T) {
	engine, _ := newEngine(singleNode(t, reply("x", "x")))

	assert.PanicsWithValue(t, "consumer bug", func() {
		for range engine.RunTurn(context.Background(), "t1", domain.Input("hi")) {
			panic("consumer bug")
		}
	})
}
