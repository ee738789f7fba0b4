package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the sync daemon for the current workspace",
		Long: `Daemon watches the local Markdown tree and polls the remote for changes,
reconciling both sides continuously until interrupted. Only one daemon may
run per workspace; a lockfile under ` + "`.syncroot`" + ` enforces this.`,
		Args: cobra.NoArgs,
		RunE: runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	logger := newLogger()

	ws, cfg, err := openWorkspace()
	if err != nil {
		return err
	}
	engine, st, err := buildEngine(ws, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("daemon stopped")
	return nil
}
