package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ErrInterrupted is returned by InterruptibleReader once its cancel channel closes.
var ErrInterrupted = errors.New("interrupted")

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// It acts as a drop-in replacement for signal.NotifyContext but allows retrieving the signal.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// InterruptibleReader wraps an io.Reader (like os.Stdin) and checks for a cancellation signal.
// A Read already blocked on the base reader only notices cancellation when it returns.
type InterruptibleReader struct {
	base   io.Reader
	cancel <-chan struct{}
}

func NewInterruptibleReader(base io.Reader, cancel <-chan struct{}) *InterruptibleReader {
	return &InterruptibleReader{
		base:   base,
		cancel: cancel,
	}
}

func (r *InterruptibleReader) Read(p []byte) (n int, err error) {
	select {
	case <-r.cancel:
		return 0, ErrInterrupted
	default:
	}

	n, err = r.base.Read(p)

	select {
	case <-r.cancel:
		return 0, ErrInterrupted
	default:
	}
	return n, err
}

// IsInterrupted reports whether err only means the user stopped the program.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrInterrupted) ||
		errors.Is(err, io.EOF)
}
