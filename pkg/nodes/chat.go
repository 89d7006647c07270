package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// ChatOption configures a chat node.
type ChatOption func(*chatConfig)

type chatConfig struct {
	systemPrompt string
	window       int
	noStream     bool
	outputKey    string
}

// WithSystemPrompt prepends a system instruction to every model call.
// The prompt is not written to the transcript.
func WithSystemPrompt(prompt string) ChatOption {
	return func(c *chatConfig) {
		c.systemPrompt = prompt
	}
}

// WithWindow limits the transcript sent to the model to the last n messages.
// Zero sends everything.
func WithWindow(n int) ChatOption {
	return func(c *chatConfig) {
		c.window = n
	}
}

// WithoutStreaming forces Invoke even when the model can stream.
func WithoutStreaming() ChatOption {
	return func(c *chatConfig) {
		c.noStream = true
	}
}

// WithOutputKey also stores the reply text under a named state field.
func WithOutputKey(key string) ChatOption {
	return func(c *chatConfig) {
		c.outputKey = key
	}
}

// Chat returns a node that sends the transcript to model and appends its reply.
// Streaming models have each chunk forwarded to the emitter as it arrives;
// other models emit their full reply as a single chunk.
func Chat(model ports.ChatModel, opts ...ChatOption) graph.NodeFunc {
	cfg := chatConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, state domain.State, out graph.Emitter) (domain.Update, error) {
		prompt := cfg.prompt(state.Messages)

		var (
			reply domain.Message
			err   error
		)
		if streamer, ok := model.(ports.StreamingChatModel); ok && !cfg.noStream {
			reply, err = stream(ctx, streamer, prompt, out)
		} else {
			reply, err = invoke(ctx, model, prompt, out)
		}
		if err != nil {
			return domain.Update{}, err
		}

		update := domain.Update{Messages: []domain.Message{reply}}
		if cfg.outputKey != "" {
			update.Values = map[string]any{cfg.outputKey: reply.Content}
		}
		return update, nil
	}
}

func (c chatConfig) prompt(history []domain.Message) []domain.Message {
	if c.window > 0 && len(history) > c.window {
		history = history[len(history)-c.window:]
	}
	msgs := make([]domain.Message, 0, len(history)+1)
	if c.systemPrompt != "" {
		msgs = append(msgs, domain.SystemMessage(c.systemPrompt))
	}
	return append(msgs, history...)
}

func invoke(ctx context.Context, model ports.ChatModel, prompt []domain.Message, out graph.Emitter) (domain.Message, error) {
	reply, err := model.Invoke(ctx, prompt)
	if err != nil {
		return domain.Message{}, fmt.Errorf("model invoke: %w", err)
	}
	if reply.Role == "" {
		reply.Role = domain.RoleAssistant
	}
	if err := out.Emit(ctx, domain.Chunk{Message: reply}); err != nil {
		return domain.Message{}, err
	}
	return reply, nil
}

func stream(ctx context.Context, model ports.StreamingChatModel, prompt []domain.Message, out graph.Emitter) (domain.Message, error) {
	var sb strings.Builder
	for chunk, err := range model.Stream(ctx, prompt) {
		if err != nil {
			return domain.Message{}, fmt.Errorf("model stream: %w", err)
		}
		if chunk.Message.Role == "" {
			chunk.Message.Role = domain.RoleAssistant
		}
		sb.WriteString(chunk.Message.Content)
		if err := out.Emit(ctx, chunk); err != nil {
			return domain.Message{}, err
		}
	}
	return domain.AssistantMessage(sb.String()), nil
}
