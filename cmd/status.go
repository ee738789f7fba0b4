package cmd

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/store"
)

func newStatusCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the sync state of every tracked page",
		Long: `Status summarizes the tracked pages by sync state and lists the pages
that need attention, including local markdown files not bound to any
remote page. With --all every page is listed, including the fully
synced ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, all)
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "List synced pages too")
	return cmd
}

func runStatus(cmd *cobra.Command, all bool) error {
	out := cmd.OutOrStdout()

	ws, _, err := openWorkspace()
	if err != nil {
		return err
	}
	st, err := store.Open(ws.DatabasePath(), store.Options{Logger: newLogger()})
	if err != nil {
		return err
	}
	defer st.Close()

	pages, err := st.ListPages(cmd.Context(), store.ListFilter{})
	if err != nil {
		return err
	}

	tracked := make(map[string]struct{}, len(pages))
	for _, page := range pages {
		if page.RelPath != "" {
			tracked[page.RelPath] = struct{}{}
		}
	}
	untracked, err := untrackedFiles(ws.Root, tracked)
	if err != nil {
		return err
	}

	counts := map[store.SyncState]int{}
	for _, page := range pages {
		counts[page.SyncState]++
	}
	if len(untracked) > 0 {
		counts[store.StateUntracked] = len(untracked)
	}
	var states []string
	for state := range counts {
		states = append(states, string(state))
	}
	sort.Strings(states)
	for _, state := range states {
		fmt.Fprintf(out, "%-16s %d\n", state, counts[store.SyncState(state)])
	}
	if len(pages) == 0 && len(untracked) == 0 {
		fmt.Fprintln(out, "no tracked pages")
		return nil
	}

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w)
	for _, page := range pages {
		if !all && page.SyncState == store.StateSynced {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", page.SyncState, page.RelPath, page.ID)
	}
	for _, rel := range untracked {
		fmt.Fprintf(w, "%s\t%s\t\n", store.StateUntracked, rel)
	}
	return w.Flush()
}

// untrackedFiles walks the workspace for markdown files no store record
// points at.
func untrackedFiles(root string, tracked map[string]struct{}) ([]string, error) {
	ignore, err := mdfs.LoadIgnoreMatcher(root)
	if err != nil {
		return nil, err
	}

	var out []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && ignore.ShouldIgnore(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") || ignore.ShouldIgnore(rel) {
			return nil
		}
		if _, ok := tracked[rel]; !ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}
