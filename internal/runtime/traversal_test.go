package runtime_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/threadgraph/internal/runtime"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/dsl"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tracer returns a node that records its name in state value "trace".
func tracer(name string) graph.NodeFunc {
	return func(_ context.Context, s domain.State, _ graph.Emitter) (domain.Update, error) {
		return domain.Update{Values: map[string]any{"trace": []any{name}}}, nil
	}
}

func TestEngine_SuperstepOrder(t *testing.T) {
	// a fans out to b and c, which join at d.
	g, err := graph.NewBuilder().
		AddNode("a", tracer("a")).
		AddNode("b", tracer("b")).
		AddNode("c", tracer("c")).
		AddNode("d", tracer("d")).
		AddEdge(graph.Start, "a").
		AddEdge("a", "b").
		AddEdge("a", "c").
		AddEdge("b", "d").
		AddEdge("c", "d").
		AddEdge("d", graph.End).
		Compile()
	require.NoError(t, err)

	var entered []string
	hooks := domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) { entered = append(entered, e.NodeID) },
	}
	schema := domain.MessagesSchema().WithReducer("trace", domain.AppendList)
	engine, _ := newEngine(g, runtime.WithSchema(schema), runtime.WithLifecycleHooks(hooks))
	ctx := context.Background()

	_, err = collect(engine.RunTurn(ctx, "t1", domain.Input("go")))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, entered, "d runs once even though two edges reach it")
	state, err := engine.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c", "d"}, state.Values["trace"])
}

func TestEngine_LaterNodesSeeEarlierUpdates(t *testing.T) {
	b := dsl.New()
	b.Add("draft").Do(func(context.Context, domain.State, graph.Emitter) (domain.Update, error) {
		return domain.Update{Values: map[string]any{"draft": "v1"}}, nil
	}).Then("review").Do(func(_ context.Context, s domain.State, _ graph.Emitter) (domain.Update, error) {
		return domain.Update{Messages: []domain.Message{domain.AssistantMessage("reviewed " + s.Values["draft"].(string))}}, nil
	}).Terminal()
	g, err := b.Build()
	require.NoError(t, err)

	engine, _ := newEngine(g)
	ctx := context.Background()
	_, err = collect(engine.RunTurn(ctx, "t1", domain.Input("hi")))
	require.NoError(t, err)

	state, err := engine.GetState(ctx, "t1")
	require.NoError(t, err)
	last, _ := state.LastMessage()
	assert.Equal(t, "reviewed v1", last.Content)
}

func TestEngine_ConditionalRouting(t *testing.T) {
	b := dsl.New()
	b.Add("triage").Do(tracer("triage")).Branch(func(_ context.Context, s domain.State) (string, error) {
		last, _ := s.LastMessage()
		if last.Content == "help" {
			return "human", nil
		}
		return "bot", nil
	}, "human", "bot")
	b.Add("human").Do(reply("a human will answer")).Terminal()
	b.Add("bot").Do(reply("automated answer")).Terminal()
	g, err := b.Build()
	require.NoError(t, err)

	engine, _ := newEngine(g)
	ctx := context.Background()

	_, err = collect(engine.RunTurn(ctx, "t1", domain.Input("help")))
	require.NoError(t, err)
	_, err = collect(engine.RunTurn(ctx, "t2", domain.Input("hello")))
	require.NoError(t, err)

	s1, _ := engine.GetState(ctx, "t1")
	s2, _ := engine.GetState(ctx, "t2")
	l1, _ := s1.LastMessage()
	l2, _ := s2.LastMessage()
	assert.Equal(t, "a human will answer", l1.Content)
	assert.Equal(t, "automated answer", l2.Content)
}

func TestEngine_UndeclaredRouteIsGraphError(t *testing.T) {
	b := dsl.New()
	b.Add("a").Do(tracer("a")).Branch(func(context.Context, domain.State) (string, error) {
		return "nowhere", nil
	}, graph.End)
	g, err := b.Build()
	require.NoError(t, err)

	engine, store := newEngine(g)
	_, err = collect(engine.RunTurn(context.Background(), "t1", domain.Input("hi")))

	var ge *domain.GraphError
	require.True(t, errors.As(err, &ge))
	assert.ErrorIs(t, err, domain.ErrInvalidRoute)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_RouterFailureIsNodeExecutionError(t *testing.T) {
	b := dsl.New()
	b.Add("a").Do(tracer("a")).Branch(func(context.Context, domain.State) (string, error) {
		return "", errBoom
	}, graph.End)
	g, err := b.Build()
	require.NoError(t, err)

	engine, _ := newEngine(g)
	_, err = collect(engine.RunTurn(context.Background(), "t1", domain.Input("hi")))

	var nodeErr *domain.NodeExecutionError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "a", nodeErr.Node)
	assert.ErrorIs(t, err, errBoom)
}

func TestEngine_StepBudget(t *testing.T) {
	b := dsl.New()
	b.Add("loop").Do(tracer("loop")).Branch(func(context.Context, domain.State) (string, error) {
		return "loop", nil
	}, "loop", graph.End)
	g, err := b.Build(graph.WithMaxSteps(3))
	require.NoError(t, err)

	runs := 0
	engine, store := newEngine(g, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnNodeEnter: func(context.Context, *domain.NodeEvent) { runs++ },
	}))

	_, err = collect(engine.RunTurn(context.Background(), "t1", domain.Input("hi")))

	var ge *domain.GraphError
	require.True(t, errors.As(err, &ge))
	assert.ErrorIs(t, err, domain.ErrStepBudgetExceeded)
	assert.Equal(t, 3, runs)

	_, err = store.Get(context.Background(), "t1")
	assert.ErrorIs(t, err, domain.ErrCheckpointNotFound)
}

func TestEngine_EmptyGraphPersistsInput(t *testing.T) {
	g, err := graph.NewBuilder().AddEdge(graph.Start, graph.End).Compile()
	require.NoError(t, err)

	engine, _ := newEngine(g)
	ctx := context.Background()
	_, err = collect(engine.RunTurn(ctx, "t1", domain.Input("note to self")))
	require.NoError(t, err)

	state, err := engine.GetState(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:note to self"}, contents(state.Messages))
}
