package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/agentyard/agentyard/internal/config"
	"github.com/agentyard/agentyard/internal/server"
	"github.com/spf13/cobra"
)

func NewRoot(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentyard",
		Short:         "Safety envelope for an AI coding agent's workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd(version))
	return root
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		root       string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the control plane HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if root != "" {
				cfg.Workspace.Root = root
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			setupLogging(cfg.Logging)

			srv, err := server.New(cfg)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&root, "workspace", "", "workspace root (overrides config)")
	return cmd
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
