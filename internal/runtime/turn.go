package runtime

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
)

// turn is the bookkeeping for one RunTurn invocation.
type turn struct {
	threadID  string
	yield     func(domain.Fragment, error) bool
	cancel    context.CancelFunc
	abandoned bool
	yielding  bool
}

// abandon records that the consumer stopped ranging. yield must not be called again.
func (t *turn) abandon() {
	t.abandoned = true
	t.cancel()
}

// fail delivers err as the final element unless the consumer is gone.
func (t *turn) fail(err error) {
	if !t.abandoned {
		t.yield(domain.Fragment{}, err)
	}
}

// RunTurn merges input into the thread's latest state, walks the graph and
// streams the assistant fragments produced by nodes.
//
// The returned sequence is lazy: nothing happens until it is ranged over, and it
// may be ranged over once. Failures arrive as a final (zero Fragment, error) pair.
// Breaking out of the range cancels the turn and nothing is persisted.
func (e *Engine) RunTurn(ctx context.Context, threadID string, input domain.Update) iter.Seq2[domain.Fragment, error] {
	var consumed atomic.Bool
	return func(yield func(domain.Fragment, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(domain.Fragment{}, domain.ErrStreamConsumed)
			return
		}
		e.runTurn(ctx, threadID, input, yield)
	}
}

func (e *Engine) runTurn(ctx context.Context, threadID string, input domain.Update, yield func(domain.Fragment, error) bool) {
	start := e.now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := &turn{threadID: threadID, yield: yield, cancel: cancel}
	logger := e.logger.With("thread_id", threadID)

	e.emitTurnStart(ctx, threadID)
	finish := func(outcome domain.TurnOutcome, err error) {
		d := e.now().Sub(start)
		e.emitTurnEnd(context.WithoutCancel(ctx), threadID, outcome, d, err)
		if err != nil && outcome != domain.OutcomeCancelled {
			logger.Warn("turn failed", "outcome", outcome, "duration", d, "err", err)
		} else {
			logger.Debug("turn finished", "outcome", outcome, "duration", d)
		}
	}

	release, err := e.guard.Acquire(ctx, threadID)
	if err != nil {
		var cte *domain.ConcurrentTurnError
		if errors.As(err, &cte) {
			finish(domain.OutcomeRejected, err)
		} else {
			finish(domain.OutcomeFailed, err)
		}
		t.fail(err)
		return
	}
	defer release()

	state, err := e.load(ctx, threadID)
	if err != nil {
		finish(domain.OutcomeFailed, err)
		t.fail(err)
		return
	}

	state = e.schema.Apply(state, input)

	state, err = e.walk(ctx, t, state)
	if t.abandoned {
		finish(domain.OutcomeCancelled, ctx.Err())
		return
	}
	if err == nil {
		// A node may have finished without noticing its context ended.
		err = ctx.Err()
	}
	if err != nil {
		outcome := domain.OutcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = domain.OutcomeCancelled
		}
		finish(outcome, err)
		t.fail(err)
		return
	}

	cp, err := e.store.Put(ctx, threadID, state)
	if err != nil {
		perr := &domain.PersistenceError{ThreadID: threadID, Op: domain.OpSave, Delivered: true, Err: err}
		finish(domain.OutcomeUnpersisted, perr)
		t.fail(perr)
		return
	}
	e.emitCheckpoint(ctx, cp)
	logger.Debug("checkpoint written", "version", cp.Version, "messages", len(state.Messages))
	finish(domain.OutcomeCompleted, nil)
}

// load returns the latest state, or an empty one for a new thread.
func (e *Engine) load(ctx context.Context, threadID string) (domain.State, error) {
	state, err := e.store.Get(ctx, threadID)
	switch {
	case err == nil:
		if state.Values == nil {
			state.Values = make(map[string]any)
		}
		return state, nil
	case errors.Is(err, domain.ErrCheckpointNotFound):
		return domain.NewState(), nil
	default:
		return domain.State{}, &domain.PersistenceError{ThreadID: threadID, Op: domain.OpLoad, Err: err}
	}
}

// walk runs supersteps from Start until the frontier is empty.
// Nodes of one superstep run in order and each sees the previous node's merge.
func (e *Engine) walk(ctx context.Context, t *turn, state domain.State) (domain.State, error) {
	frontier, err := e.graph.Entry(ctx, state)
	if err != nil {
		return state, e.routeError(t.threadID, graph.Start, err)
	}

	steps := 0
	for len(frontier) > 0 {
		var next []string
		for _, name := range frontier {
			steps++
			if steps > e.graph.MaxSteps() {
				return state, &domain.GraphError{
					Node: name,
					Err:  fmt.Errorf("%w: limit %d", domain.ErrStepBudgetExceeded, e.graph.MaxSteps()),
				}
			}

			update, err := e.runNode(ctx, t, name, steps, state)
			if err != nil {
				return state, err
			}
			state = e.schema.Apply(state, update)

			succ, err := e.graph.Next(ctx, name, state)
			if err != nil {
				return state, e.routeError(t.threadID, name, err)
			}
			for _, s := range succ {
				if s != graph.End && !slices.Contains(next, s) {
					next = append(next, s)
				}
			}
		}
		frontier = next
	}
	return state, nil
}

func (e *Engine) runNode(ctx context.Context, t *turn, name string, step int, state domain.State) (update domain.Update, err error) {
	fn, ok := e.graph.Node(name)
	if !ok {
		return domain.Update{}, &domain.GraphError{Node: name, Err: domain.ErrUnknownNode}
	}

	em := &emitter{turn: t, node: name}
	started := e.now()
	e.emitNodeEnter(ctx, t.threadID, name, step)
	defer func() {
		e.emitNodeLeave(context.WithoutCancel(ctx), t.threadID, name, step, em.count, e.now().Sub(started), err)
	}()

	update, err = e.call(ctx, t, fn, state.Clone(), em)
	if t.abandoned {
		return domain.Update{}, domain.ErrTurnAbandoned
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return domain.Update{}, err
		}
		return domain.Update{}, &domain.NodeExecutionError{ThreadID: t.threadID, Node: name, Err: err}
	}
	return update, nil
}

// call invokes a node, turning a panic into an error. Panics raised by the
// consumer's loop body while a fragment is being yielded keep propagating.
func (e *Engine) call(ctx context.Context, t *turn, fn graph.NodeFunc, state domain.State, out graph.Emitter) (update domain.Update, err error) {
	defer func() {
		if r := recover(); r != nil {
			if t.yielding {
				panic(r)
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, state, out)
}

func (e *Engine) routeError(threadID, node string, err error) error {
	var ge *domain.GraphError
	if errors.As(err, &ge) {
		return err
	}
	return &domain.NodeExecutionError{ThreadID: threadID, Node: node, Err: err}
}

