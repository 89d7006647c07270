package runtime

import (
	"context"
	"time"

	"github.com/aretw0/threadgraph/pkg/domain"
)

func (e *Engine) base(t domain.EventType, threadID string) domain.EventBase {
	return domain.EventBase{Timestamp: e.now(), Type: t, ThreadID: threadID}
}

func (e *Engine) emitTurnStart(ctx context.Context, threadID string) {
	if e.hooks.OnTurnStart != nil {
		e.hooks.OnTurnStart(ctx, &domain.TurnEvent{EventBase: e.base(domain.EventTurnStart, threadID)})
	}
}

func (e *Engine) emitTurnEnd(ctx context.Context, threadID string, outcome domain.TurnOutcome, d time.Duration, err error) {
	if e.hooks.OnTurnEnd != nil {
		e.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
			EventBase: e.base(domain.EventTurnEnd, threadID),
			Outcome:   outcome,
			Duration:  d,
			Err:       err,
		})
	}
}

func (e *Engine) emitNodeEnter(ctx context.Context, threadID, node string, step int) {
	if e.hooks.OnNodeEnter != nil {
		e.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeEnter, threadID),
			NodeID:    node,
			Step:      step,
		})
	}
}

func (e *Engine) emitNodeLeave(ctx context.Context, threadID, node string, step, fragments int, d time.Duration, err error) {
	if e.hooks.OnNodeLeave != nil {
		e.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase: e.base(domain.EventNodeLeave, threadID),
			NodeID:    node,
			Step:      step,
			Fragments: fragments,
			Duration:  d,
			Err:       err,
		})
	}
}

func (e *Engine) emitCheckpoint(ctx context.Context, cp domain.Checkpoint) {
	if e.hooks.OnCheckpoint != nil {
		e.hooks.OnCheckpoint(ctx, &domain.CheckpointEvent{
			EventBase: e.base(domain.EventCheckpoint, cp.ThreadID),
			Version:   cp.Version,
		})
	}
}
