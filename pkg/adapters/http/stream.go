package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
)

// StreamManager fans state diffs out to the SSE subscribers of each thread.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // ThreadID -> set of channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a buffered channel for threadID. The returned func
// unregisters and closes it.
func (sm *StreamManager) Subscribe(threadID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[threadID]; !ok {
		sm.subscribers[threadID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[threadID][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[threadID]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, threadID)
				}
			}
		})
	}
}

// Subscribers reports how many channels listen on threadID.
func (sm *StreamManager) Subscribers(threadID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[threadID])
}

// Broadcast delivers msg to every subscriber of threadID without blocking.
func (sm *StreamManager) Broadcast(threadID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[threadID]
	if !ok {
		return
	}
	sm.logger.Debug("broadcasting state diff", "thread_id", threadID, "subscribers", len(subs), "payload_size", len(msg))
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			// Slow client.
			sm.logger.Warn("sse client buffer full, dropping message", "thread_id", threadID)
		}
	}
}

// eventWriter writes Server-Sent Events and flushes after each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &eventWriter{w: w, flusher: flusher}, true
}

func (ew *eventWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ew.raw(name, string(data))
}

func (ew *eventWriter) raw(name, data string) error {
	var err error
	if name != "" {
		_, err = fmt.Fprintf(ew.w, "event: %s\ndata: %s\n\n", name, data)
	} else {
		_, err = fmt.Fprintf(ew.w, "data: %s\n\n", data)
	}
	if err != nil {
		return err
	}
	ew.flusher.Flush()
	return nil
}

// sseSink streams reply tokens as "token" events.
type sseSink struct {
	events *eventWriter
}

func (s sseSink) StreamToken(_ context.Context, token string) error {
	return s.events.event("token", map[string]string{"content": token})
}

func (s sseSink) Send(context.Context, string) error { return nil }
