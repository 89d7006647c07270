package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCheckpointNotFound is returned by stores when a thread has no checkpoint.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrThreadNotFound is returned by archives when a thread record does not exist.
	ErrThreadNotFound = errors.New("thread not found")

	// ErrStreamConsumed is yielded when a turn's fragment sequence is ranged over twice.
	ErrStreamConsumed = errors.New("turn stream already consumed")

	// ErrTurnAbandoned is returned by Emit once the caller stops consuming a turn.
	ErrTurnAbandoned = errors.New("turn abandoned by consumer")

	// Graph construction failures, wrapped by GraphError.
	ErrDuplicateNode      = errors.New("duplicate node")
	ErrUnknownNode        = errors.New("unknown node")
	ErrReservedNode       = errors.New("reserved node name")
	ErrInvalidEdge        = errors.New("invalid edge")
	ErrNoEntry            = errors.New("no edge out of start")
	ErrNoPathToEnd        = errors.New("no path from start to end")
	ErrInvalidRoute       = errors.New("router returned an undeclared destination")
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
)

// GraphError reports a malformed graph. It is raised by Compile, and at run time
// when a router picks an undeclared destination or the step budget runs out.
type GraphError struct {
	Node string
	Err  error
}

func (e *GraphError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph: %v", e.Err)
	}
	return fmt.Sprintf("graph: node %q: %v", e.Node, e.Err)
}

func (e *GraphError) Unwrap() error { return e.Err }

// NodeExecutionError reports that a node function failed and the turn was aborted.
type NodeExecutionError struct {
	ThreadID string
	Node     string
	Err      error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("thread %q: node %q failed: %v", e.ThreadID, e.Node, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// PersistenceOp names the store operation that failed.
type PersistenceOp string

const (
	OpLoad PersistenceOp = "load"
	OpSave PersistenceOp = "save"
)

// PersistenceError reports a checkpoint store failure.
// Delivered is set when the turn's output already reached the caller but was not recorded.
type PersistenceError struct {
	ThreadID  string
	Op        PersistenceOp
	Delivered bool
	Err       error
}

func (e *PersistenceError) Error() string {
	if e.Delivered {
		return fmt.Sprintf("thread %q: %s checkpoint failed after output was delivered: %v", e.ThreadID, e.Op, e.Err)
	}
	return fmt.Sprintf("thread %q: %s checkpoint failed: %v", e.ThreadID, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConcurrentTurnError is returned when a turn is attempted while another is in flight
// for the same thread and the engine is configured to reject rather than queue.
type ConcurrentTurnError struct {
	ThreadID string
}

func (e *ConcurrentTurnError) Error() string {
	return fmt.Sprintf("thread %q: a turn is already in flight", e.ThreadID)
}
