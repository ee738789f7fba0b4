package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [FILE...]",
		Short: "Push local Markdown changes to the remote",
		Long: `Push performs a one-shot sync to the remote.

With no arguments it walks the workspace and pushes every file whose body
differs from the last recorded sync. With file paths it pushes exactly
those files. Files carrying unresolved conflict markers are rejected.`,
		Args: cobra.ArbitraryArgs,
		RunE: runPush,
	}
}

func runPush(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	out := cmd.OutOrStdout()

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
		pushed, err := engine.PushAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ %d file(s) pushed\n", pushed)
		return nil
	}

	for _, arg := range args {
		rel, err := workspaceRel(ws.Root, arg)
		if err != nil {
			return err
		}
		if err := engine.Push(ctx, rel); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "✓ %d file(s) pushed\n", len(args))
	return nil
}

// workspaceRel normalizes a user-supplied path to a slash-separated path
// relative to the workspace root.
func workspaceRel(root, arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the workspace", arg)
	}
	return filepath.ToSlash(rel), nil
}
