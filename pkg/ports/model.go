package ports

import (
	"context"
	"iter"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// ChatModel is the language model collaborator consumed by chat nodes.
type ChatModel interface {
	// Invoke returns the complete reply to the given transcript.
	Invoke(ctx context.Context, messages []domain.Message) (domain.Message, error)
}

// StreamingChatModel produces its reply incrementally.
// The sequence ends after the last chunk or after the first error.
type StreamingChatModel interface {
	ChatModel
	Stream(ctx context.Context, messages []domain.Message) iter.Seq2[domain.Chunk, error]
}
