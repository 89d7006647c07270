package runtime

import (
	"context"

	"github.com/aretw0/threadgraph/pkg/domain"
)

// emitter forwards a node's chunks to the turn's consumer.
// It runs on the consumer's goroutine: yield is called directly.
type emitter struct {
	turn  *turn
	node  string
	count int
}

func (em *emitter) Emit(ctx context.Context, chunk domain.Chunk) error {
	t := em.turn
	if t.abandoned {
		return domain.ErrTurnAbandoned
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !chunk.Message.Visible() {
		return nil
	}

	frag := domain.Fragment{
		ThreadID: t.threadID,
		Node:     em.node,
		Message:  chunk.Message,
		Metadata: chunk.Metadata,
	}
	t.yielding = true
	ok := t.yield(frag, nil)
	t.yielding = false
	if !ok {
		t.abandon()
		return domain.ErrTurnAbandoned
	}
	em.count++
	return nil
}
