package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/aretw0/threadgraph/internal/cli"
	"github.com/aretw0/threadgraph/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the engine as MCP tools (run_turn, get_state, seed_history, get_graph).

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := mcp.NewServer(rt.Engine, rt.Chat, rt.Logger)

		switch transport {
		case "stdio":
			// Keep stray log output off the JSON-RPC stream.
			log.SetOutput(cmd.ErrOrStderr())
			rt.Logger.Info("starting threadgraph MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			sc := cli.NewSignalContext(cmd.Context())
			defer sc.Cancel()

			addr := fmt.Sprintf(":%d", port)
			err := srv.ServeSSE(sc, addr, fmt.Sprintf("http://localhost:%d", port))
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			rt.Logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
