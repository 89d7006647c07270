package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventTurnStart  EventType = "turn_start"
	EventTurnEnd    EventType = "turn_end"
	EventNodeEnter  EventType = "node_enter"
	EventNodeLeave  EventType = "node_leave"
	EventCheckpoint EventType = "checkpoint"
)

// TurnOutcome classifies how a turn finished.
type TurnOutcome string

const (
	OutcomeCompleted   TurnOutcome = "completed"
	OutcomeFailed      TurnOutcome = "failed"
	OutcomeCancelled   TurnOutcome = "cancelled"
	OutcomeUnpersisted TurnOutcome = "unpersisted"
	OutcomeRejected    TurnOutcome = "rejected"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	ThreadID  string    `json:"thread_id"`
}

// TurnEvent marks the start or end of a turn.
type TurnEvent struct {
	EventBase
	Outcome  TurnOutcome   `json:"outcome,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// NodeEvent represents entry or exit from a node.
type NodeEvent struct {
	EventBase
	NodeID    string        `json:"node_id"`
	Step      int           `json:"step"`
	Fragments int           `json:"fragments,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
}

// CheckpointEvent is emitted after a checkpoint is written.
type CheckpointEvent struct {
	EventBase
	Version int64 `json:"version"`
}

// LifecycleHooks defines callbacks for engine observability.
// Hooks run synchronously on the turn's goroutine and must not block.
type LifecycleHooks struct {
	OnTurnStart  func(context.Context, *TurnEvent)
	OnTurnEnd    func(context.Context, *TurnEvent)
	OnNodeEnter  func(context.Context, *NodeEvent)
	OnNodeLeave  func(context.Context, *NodeEvent)
	OnCheckpoint func(context.Context, *CheckpointEvent)
}

// JoinHooks fans each callback out to every non-nil hook set, in order.
func JoinHooks(sets ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range sets {
		out.OnTurnStart = chain(out.OnTurnStart, h.OnTurnStart)
		out.OnTurnEnd = chain(out.OnTurnEnd, h.OnTurnEnd)
		out.OnNodeEnter = chain(out.OnNodeEnter, h.OnNodeEnter)
		out.OnNodeLeave = chain(out.OnNodeLeave, h.OnNodeLeave)
		out.OnCheckpoint = chain(out.OnCheckpoint, h.OnCheckpoint)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
