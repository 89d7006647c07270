// Package mcp exposes a threadgraph engine as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/threadgraph"
	mermaid "github.com/aretw0/threadgraph/internal/presentation/graph"
	"github.com/aretw0/threadgraph/pkg/chat"
	"github.com/aretw0/threadgraph/pkg/domain"
	"github.com/aretw0/threadgraph/pkg/graph"
	"github.com/aretw0/threadgraph/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const graphResourceURI = "threadgraph://graph"

// Engine defines the engine surface required by the MCP server.
type Engine interface {
	ports.Engine
	Graph() *graph.Graph
}

// TurnResult is the structured output of run_turn.
type TurnResult struct {
	ThreadID string `json:"thread_id" jsonschema_description:"Thread the turn ran on"`
	Reply    string `json:"reply" jsonschema_description:"Concatenated assistant fragments"`
	Version  int64  `json:"version,omitempty" jsonschema_description:"Checkpoint version written by the turn"`
	Warning  string `json:"warning,omitempty" jsonschema_description:"Set when the reply was delivered but not saved"`
}

// StateResult is the structured output of get_state.
type StateResult struct {
	ThreadID string           `json:"thread_id"`
	Version  int64            `json:"version" jsonschema_description:"0 when the thread has no checkpoint"`
	Messages []domain.Message `json:"messages"`
	Values   map[string]any   `json:"values,omitempty"`
}

// SeedResult is the structured output of seed_history.
type SeedResult struct {
	ThreadID string `json:"thread_id"`
	Seeded   bool   `json:"seeded" jsonschema_description:"False when the thread already had messages"`
}

type turnArgs struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

type threadArgs struct {
	ThreadID string `json:"thread_id"`
}

type seedArgs struct {
	ThreadID string                `json:"thread_id"`
	History  []domain.HistoryEntry `json:"history"`
}

// Server wraps an engine and its chat service and exposes them as an MCP Server.
type Server struct {
	engine    Engine
	chat      *chat.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, svc *chat.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		engine:    engine,
		chat:      svc,
		logger:    logger,
		mcpServer: server.NewMCPServer("threadgraph-mcp", threadgraph.Version),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("shutdown signal received, stopping MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("run_turn",
		mcp.WithDescription("Send a user message to a thread and run one turn of the graph. Returns the assistant reply."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread ID")),
		mcp.WithString("content", mcp.Required(), mcp.Description("User message")),
		mcp.WithOutputSchema[TurnResult](),
	), mcp.NewStructuredToolHandler(s.handleRunTurn))

	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Read the latest state of a thread. Unknown threads have an empty state."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread ID")),
		mcp.WithOutputSchema[StateResult](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	s.mcpServer.AddTool(mcp.NewTool("seed_history",
		mcp.WithDescription("Install prior chat history on a thread that has no messages yet."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Conversation thread ID")),
		mcp.WithArray("history",
			mcp.Required(),
			mcp.Description("Messages in chronological order"),
			mcp.Items(map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":    map[string]any{"type": "string", "enum": []string{"user", "assistant", "system"}},
					"content": map[string]any{"type": "string"},
				},
				"required": []string{"role", "content"},
			}),
		),
		mcp.WithOutputSchema[SeedResult](),
	), mcp.NewStructuredToolHandler(s.handleSeedHistory))

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the graph topology as a Mermaid flowchart."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(mermaid.GenerateMermaid(s.engine.Graph(), nil)), nil
	})
}

func (s *Server) handleRunTurn(ctx context.Context, request mcp.CallToolRequest, args turnArgs) (TurnResult, error) {
	if args.ThreadID == "" {
		return TurnResult{}, errors.New("thread_id is required")
	}

	reply, err := s.chat.OnMessage(ctx, args.ThreadID, args.Content, &chat.BufferSink{})
	result := TurnResult{ThreadID: args.ThreadID, Reply: reply}
	if err != nil {
		var perr *domain.PersistenceError
		if !errors.As(err, &perr) || !perr.Delivered {
			s.logger.Warn("MCP run_turn failed", "thread_id", args.ThreadID, "err", err)
			return TurnResult{}, fmt.Errorf("turn failed: %w", err)
		}
		result.Warning = fmt.Sprintf("reply was not saved: %v", perr.Err)
		return result, nil
	}

	if cp, err := s.engine.GetCheckpoint(ctx, args.ThreadID); err == nil {
		result.Version = cp.Version
	}
	return result, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args threadArgs) (StateResult, error) {
	if args.ThreadID == "" {
		return StateResult{}, errors.New("thread_id is required")
	}

	cp, err := s.engine.GetCheckpoint(ctx, args.ThreadID)
	switch {
	case errors.Is(err, domain.ErrCheckpointNotFound):
		cp.State = domain.NewState()
	case err != nil:
		return StateResult{}, fmt.Errorf("get state failed: %w", err)
	}

	return StateResult{
		ThreadID: args.ThreadID,
		Version:  cp.Version,
		Messages: cp.State.Messages,
		Values:   cp.State.Values,
	}, nil
}

func (s *Server) handleSeedHistory(ctx context.Context, request mcp.CallToolRequest, args seedArgs) (SeedResult, error) {
	seeded, err := s.chat.Resume(ctx, args.ThreadID, args.History)
	if err != nil {
		return SeedResult{}, fmt.Errorf("seed failed: %w", err)
	}
	return SeedResult{ThreadID: args.ThreadID, Seeded: seeded}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(graphResourceURI, "Graph topology",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		g := s.engine.Graph()
		jsonBytes, err := json.Marshal(map[string]any{
			"nodes":     g.Nodes(),
			"edges":     g.Edges(),
			"branches":  g.Branches(),
			"max_steps": g.MaxSteps(),
		})
		if err != nil {
			return nil, err
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      graphResourceURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
