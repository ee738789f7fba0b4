package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull [PAGE_ID...]",
		Short: "Pull remote pages to local Markdown files",
		Long: `Pull performs a one-shot sync from the remote.

With no arguments it brings the whole mirrored scope up to date, pulling
every page whose remote version is ahead of the local state. With page ids
it pulls exactly those pages.`,
		Args: cobra.ArbitraryArgs,
		RunE: runPull,
	}
}

func runPull(cmd *cobra.Command, args []string) error {
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

	lock, err := mdfs.AcquireLock(ws.StateDir())
	if err != nil {
		return err
	}
	defer lock.Release()

	ctx := cmd.Context()
	if len(args) == 0 {
		return engine.InitialSync(ctx)
	}
	for _, pageID := range args {
		if err := engine.Pull(ctx, pageID); err != nil {
			return err
		}
	}
	return nil
}
