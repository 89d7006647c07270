package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/threadgraph/internal/cli"
	httpAdapter "github.com/aretw0/threadgraph/pkg/adapters/http"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes threads over a JSON and Server-Sent Events API. The OpenAPI document is served on /openapi.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := newRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		addr := rt.Config.Server.Addr
		if cmd.Flags().Changed("addr") {
			addr, _ = cmd.Flags().GetString("addr")
		}

		handler := httpAdapter.NewHandler(rt.Engine, rt.Chat,
			httpAdapter.WithLogger(rt.Logger),
			httpAdapter.WithMetrics(rt.Metrics.Handler()),
		)

		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			rt.Logger.Info("starting threadgraph server", "address", srv.Addr, "store", rt.Config.Store.Driver, "model", rt.Config.Model.Provider)
			serverErrors <- srv.ListenAndServe()
		}()

		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()

		// Blocking main and waiting for shutdown.
		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sc.Done():
			rt.Logger.Info("start shutdown", "signal", sc.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				rt.Logger.Error("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			rt.Logger.Info("threadgraph server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", ":8080", "Address to listen on (overrides server.addr)")
}
