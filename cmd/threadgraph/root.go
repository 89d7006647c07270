package main

import (
	"fmt"
	"os"

	"github.com/aretw0/threadgraph/internal/cli"
	"github.com/aretw0/threadgraph/internal/config"
	"github.com/aretw0/threadgraph/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "threadgraph",
	Short: "threadgraph runs conversational graphs over persistent threads",
	Long: `threadgraph executes a graph of nodes once per user message, streams the
assistant reply and checkpoints the thread so the conversation can continue later.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text, json or pretty")
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, nil
}

// newRuntime loads the configuration and wires the engine. Logs go to stderr.
func newRuntime(cmd *cobra.Command) (*cli.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewWithFormat(cmd.ErrOrStderr(), level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	return cli.Build(cfg, logger)
}
