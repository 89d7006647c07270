package nodes_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/threadgraph/pkg/adapters/echo"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/nodes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	chunks []domain.Chunk
	err    error
}

func (r *recorder) Emit(_ context.Context, chunk domain.Chunk) error {
	if r.err != nil {
		return r.err
	}
	r.chunks = append(r.chunks, chunk)
	return nil
}

// spyModel records the prompt it receives and answers with a fixed reply.
type spyModel struct {
	prompt []domain.Message
	reply  domain.Message
	err    error
}

func (m *spyModel) Invoke(_ context.Context, msgs []domain.Message) (domain.Message, error) {
	m.prompt = msgs
	return m.reply, m.err
}

func stateWith(msgs ...domain.Message) domain.State {
	s := domain.NewState()
	s.Messages = msgs
	return s
}

func TestChat_Streaming(t *testing.T) {
	node := nodes.Chat(echo.New())
	out := &recorder{}

	update, err := node(context.Background(), stateWith(domain.UserMessage("hello there")), out)
	require.NoError(t, err)

	require.Len(t, out.chunks, 2)
	assert.Equal(t, "hello ", out.chunks[0].Message.Content)
	assert.Equal(t, "there", out.chunks[1].Message.Content)
	assert.Equal(t, []domain.Message{domain.AssistantMessage("hello there")}, update.Messages)
}

func TestChat_WithoutStreaming(t *testing.T) {
	node := nodes.Chat(echo.New(), nodes.WithoutStreaming())
	out := &recorder{}

	update, err := node(context.Background(), stateWith(domain.UserMessage("hello there")), out)
	require.NoError(t, err)

	require.Len(t, out.chunks, 1)
	assert.Equal(t, "hello there", out.chunks[0].Message.Content)
	assert.Equal(t, "hello there", update.Messages[0].Content)
}

func TestChat_PromptShaping(t *testing.T) {
	model := &spyModel{reply: domain.Message{Content: "ok"}}
	node := nodes.Chat(model,
		nodes.WithSystemPrompt("be brief"),
		nodes.WithWindow(2),
		nodes.WithOutputKey("answer"),
	)

	state := stateWith(
		domain.UserMessage("one"),
		domain.AssistantMessage("two"),
		domain.UserMessage("three"),
	)
	update, err := node(context.Background(), state, &recorder{})
	require.NoError(t, err)

	assert.Equal(t, []domain.Message{
		domain.SystemMessage("be brief"),
		domain.AssistantMessage("two"),
		domain.UserMessage("three"),
	}, model.prompt)

	// A reply without a role is treated as assistant output.
	require.Len(t, update.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, update.Messages[0].Role)
	assert.Equal(t, "ok", update.Values["answer"])
	assert.Len(t, state.Messages, 3, "node must not mutate its snapshot")
}

func TestChat_ModelError(t *testing.T) {
	boom := errors.New("boom")
	node := nodes.Chat(&spyModel{err: boom})

	_, err := node(context.Background(), stateWith(domain.UserMessage("hi")), &recorder{})
	assert.ErrorIs(t, err, boom)
}

func TestChat_StopsWhenEmitFails(t *testing.T) {
	node := nodes.Chat(echo.New())
	out := &recorder{err: domain.ErrTurnAbandoned}

	_, err := node(context.Background(), stateWith(domain.UserMessage("a b c")), out)
	assert.ErrorIs(t, err, domain.ErrTurnAbandoned)
	assert.Empty(t, out.chunks)
}
