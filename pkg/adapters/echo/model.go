// Package echo provides a deterministic chat model that repeats the latest user message.
// It is meant for demos, tests and wiring checks without network access.
package echo

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/ports"
)

// Model echoes the most recent user message back as the assistant reply.
type Model struct {
	prefix string
	delay  time.Duration
}

// Option configures the echo model.
type Option func(*Model)

// WithPrefix prepends text to every reply.
func WithPrefix(prefix string) Option {
	return func(m *Model) {
		m.prefix = prefix
	}
}

// WithDelay pauses between streamed words.
func WithDelay(d time.Duration) Option {
	return func(m *Model) {
		m.delay = d
	}
}

// New creates an echo model.
func New(opts ...Option) *Model {
	m := &Model{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ ports.StreamingChatModel = (*Model)(nil)

// Invoke returns the whole reply at once.
func (m *Model) Invoke(ctx context.Context, messages []domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	return domain.AssistantMessage(m.reply(messages)), nil
}

// Stream yields the reply one word at a time, keeping the separating spaces.
func (m *Model) Stream(ctx context.Context, messages []domain.Message) iter.Seq2[domain.Chunk, error] {
	return func(yield func(domain.Chunk, error) bool) {
		words := strings.SplitAfter(m.reply(messages), " ")
		for i, word := range words {
			if word == "" {
				continue
			}
			if i > 0 && m.delay > 0 {
				select {
				case <-ctx.Done():
					yield(domain.Chunk{}, ctx.Err())
					return
				case <-time.After(m.delay):
				}
			}
			if err := ctx.Err(); err != nil {
				yield(domain.Chunk{}, err)
				return
			}
			if !yield(domain.Chunk{Message: domain.AssistantMessage(word)}, nil) {
				return
			}
		}
	}
}

func (m *Model) reply(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return m.prefix + messages[i].Content
		}
	}
	return m.prefix
}
