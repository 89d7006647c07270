package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/threadgraph"
	mermaid "github.com/aretw0/threadgraph/internal/presentation/graph"
	"github.com/aretw0/threadgraph/pkg/chat"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// maxBodySize caps request bodies; message content is further limited by the chat sanitiser.
const maxBodySize = 1 << 20

// Engine is the engine surface the HTTP transport needs.
type Engine interface {
	ports.Engine
	History(ctx context.Context, threadID string) ([]domain.Checkpoint, error)
	Delete(ctx context.Context, threadID string) error
	Graph() *graph.Graph
}

// Server exposes a chat service and its engine over HTTP.
type Server struct {
	Engine  Engine
	Chat    *chat.Service
	Streams *StreamManager
	Metrics http.Handler
	Logger  *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithMetrics mounts h (typically promhttp) on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.Metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// NewServer creates a Server for engine and svc.
func NewServer(engine Engine, svc *chat.Service, opts ...Option) *Server {
	s := &Server{
		Engine: engine,
		Chat:   svc,
		Logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.Logger)
	return s
}

// NewHandler creates the HTTP handler for engine and svc.
func NewHandler(engine Engine, svc *chat.Service, opts ...Option) http.Handler {
	return NewServer(engine, svc, opts...).Handler()
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Swagger UI
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/graph", s.GetGraph)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics)
	}

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.ListThreads)
		r.Post("/", s.StartThread)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", s.DeleteThread)
			r.Post("/messages", s.SendMessage)
			r.Post("/resume", s.ResumeThread)
			r.Get("/state", s.GetState)
			r.Get("/checkpoint", s.GetCheckpoint)
			r.Get("/history", s.GetHistory)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>threadgraph API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

type startRequest struct {
	ThreadID string `json:"thread_id"`
	Name     string `json:"name"`
	UserID   string `json:"user_id"`
}

type messageRequest struct {
	Content string `json:"content"`
}

type messageResponse struct {
	ThreadID string `json:"thread_id"`
	Reply    string `json:"reply"`
	Version  int64  `json:"version,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

type resumeRequest struct {
	History []domain.HistoryEntry `json:"history"`
}

type resumeResponse struct {
	ThreadID string `json:"thread_id"`
	Seeded   bool   `json:"seeded"`
}

type graphResponse struct {
	Nodes    []string       `json:"nodes"`
	Edges    []graph.Edge   `json:"edges"`
	Branches []graph.Branch `json:"branches"`
	MaxSteps int            `json:"max_steps"`
}

// StartThread handles POST /threads.
func (s *Server) StartThread(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if !s.readBody(w, r, "StartRequest", &body) {
		return
	}

	rec, err := s.Chat.OnChatStart(r.Context(), chat.ChatStart{
		ThreadID: body.ThreadID,
		Name:     body.Name,
		UserID:   body.UserID,
	})
	if err != nil {
		s.fail(w, "StartThread", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// ListThreads handles GET /threads.
func (s *Server) ListThreads(w http.ResponseWriter, r *http.Request) {
	archive := s.Chat.Archive()
	if archive == nil {
		writeJSON(w, http.StatusOK, []domain.ThreadRecord{})
		return
	}
	recs, err := archive.ListThreads(r.Context(), r.URL.Query().Get("user"))
	if err != nil {
		s.fail(w, "ListThreads", err)
		return
	}
	if recs == nil {
		recs = []domain.ThreadRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// DeleteThread handles DELETE /threads/{id}.
func (s *Server) DeleteThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	if err := s.Engine.Delete(r.Context(), threadID); err != nil {
		s.fail(w, "DeleteThread", err)
		return
	}
	if archive := s.Chat.Archive(); archive != nil {
		if err := archive.DeleteThread(r.Context(), threadID); err != nil {
			s.fail(w, "DeleteThread", err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendMessage handles POST /threads/{id}/messages.
// The reply is streamed as Server-Sent Events when the client accepts them.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	var body messageRequest
	if !s.readBody(w, r, "MessageRequest", &body) {
		return
	}

	before := s.snapshot(r.Context(), threadID)

	if wantsEventStream(r) {
		s.streamMessage(w, r, threadID, body.Content, before)
		return
	}

	sink := &chat.BufferSink{}
	reply, err := s.Chat.OnMessage(r.Context(), threadID, body.Content, sink)
	resp := messageResponse{ThreadID: threadID, Reply: reply}
	if err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) || !perr.Delivered {
			s.fail(w, "SendMessage", err)
			return
		}
		resp.Warning = fmt.Sprintf("reply was not saved: %v", perr.Err)
	}

	after := s.publish(r.Context(), threadID, before)
	if after != nil {
		resp.Version = after.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) streamMessage(w http.ResponseWriter, r *http.Request, threadID, content string, before *domain.Checkpoint) {
	events, ok := newEventWriter(w)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.Logger.Error("SendMessage: streaming not supported")
		return
	}

	reply, err := s.Chat.OnMessage(r.Context(), threadID, content, sseSink{events: events})
	if err != nil {
		events.event("error", map[string]string{"error": err.Error()})
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) || !perr.Delivered {
			s.Logger.Warn("SendMessage: turn failed", "thread_id", threadID, "err", err)
			return
		}
	}

	resp := messageResponse{ThreadID: threadID, Reply: reply}
	if after := s.publish(r.Context(), threadID, before); after != nil {
		resp.Version = after.Version
	}
	events.event("done", resp)
}

// ResumeThread handles POST /threads/{id}/resume. Without a history in the
// body the archived chat history is used.
func (s *Server) ResumeThread(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	var body resumeRequest
	if !s.readBody(w, r, "ResumeRequest", &body) {
		return
	}

	var (
		seeded bool
		err    error
	)
	if body.History != nil {
		seeded, err = s.Chat.Resume(r.Context(), threadID, body.History)
	} else {
		seeded, err = s.Chat.ResumeByID(r.Context(), threadID)
	}
	if err != nil {
		s.fail(w, "ResumeThread", err)
		return
	}
	writeJSON(w, http.StatusOK, resumeResponse{ThreadID: threadID, Seeded: seeded})
}

// GetState handles GET /threads/{id}/state.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.GetState(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetState", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetCheckpoint handles GET /threads/{id}/checkpoint.
func (s *Server) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := s.Engine.GetCheckpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetCheckpoint", err)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

// GetHistory handles GET /threads/{id}/history.
func (s *Server) GetHistory(w http.ResponseWriter, r *http.Request) {
	lineage, err := s.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "GetHistory", err)
		return
	}
	if lineage == nil {
		lineage = []domain.Checkpoint{}
	}
	writeJSON(w, http.StatusOK, lineage)
}

// GetGraph handles GET /graph. ?format=mermaid returns a flowchart.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	g := s.Engine.Graph()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, mermaid.GenerateMermaid(g, nil))
		return
	}
	writeJSON(w, http.StatusOK, graphResponse{
		Nodes:    g.Nodes(),
		Edges:    g.Edges(),
		Branches: g.Branches(),
		MaxSteps: g.MaxSteps(),
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "threadgraph-http",
		"version":     threadgraph.Version,
		"api_version": apiVersion,
	})
}

// SubscribeEvents handles GET /threads/{id}/events (SSE).
// Each event carries a domain.StateDiff; ?watch=values,messages filters them.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "id")
	events, ok := newEventWriter(w)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.Logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	ch, cancel := s.Streams.Subscribe(threadID)
	defer cancel()
	s.Logger.Info("sse client subscribed", "thread_id", threadID)

	events.raw("ping", "connected")

	for {
		select {
		case <-r.Context().Done():
			s.Logger.Info("sse client disconnected", "thread_id", threadID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			if err := events.raw("", msg); err != nil {
				return
			}
		}
	}
}

func matchesWatch(msg string, watchList []string) bool {
	var diff domain.StateDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "values":
			if len(diff.Values) > 0 {
				return true
			}
		case "messages":
			if len(diff.Appended) > 0 {
				return true
			}
		}
	}
	return false
}

// snapshot returns the latest checkpoint, or nil when there is none.
func (s *Server) snapshot(ctx context.Context, threadID string) *domain.Checkpoint {
	cp, err := s.Engine.GetCheckpoint(ctx, threadID)
	if err != nil {
		return nil
	}
	return &cp
}

// publish broadcasts the diff between before and the latest checkpoint and returns the latter.
func (s *Server) publish(ctx context.Context, threadID string, before *domain.Checkpoint) *domain.Checkpoint {
	after := s.snapshot(context.WithoutCancel(ctx), threadID)
	if after == nil || s.Streams.Subscribers(threadID) == 0 {
		return after
	}

	var old *domain.State
	if before != nil {
		old = &before.State
	}
	diff := domain.Diff(old, &after.State)
	if diff == nil {
		s.Logger.Debug("no diff calculated", "thread_id", threadID)
		return after
	}
	diff.Version = after.Version
	if data, err := json.Marshal(diff); err == nil {
		s.Streams.Broadcast(threadID, string(data))
	}
	return after
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request, schema string, dst any) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := decodeBody(schema, raw, dst); err != nil {
		s.Logger.Warn("invalid request body", "schema", schema, "err", err)
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.Logger.Error(op+" failed", "err", err)
	} else {
		s.Logger.Warn(op+" rejected", "err", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	var (
		cte  *domain.ConcurrentTurnError
		ne   *domain.NodeExecutionError
		ge   *domain.GraphError
		perr *domain.PersistenceError
	)
	switch {
	case errors.Is(err, chat.ErrInputTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chat.ErrEmptyInput), errors.Is(err, chat.ErrInvalidUTF8):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCheckpointNotFound), errors.Is(err, domain.ErrThreadNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrUnsupported):
		return http.StatusNotImplemented
	case errors.As(err, &cte):
		return http.StatusConflict
	case errors.As(err, &ne):
		return http.StatusBadGateway
	case errors.As(err, &perr):
		return http.StatusServiceUnavailable
	case errors.As(err, &ge):
		return http.StatusInternalServerError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
