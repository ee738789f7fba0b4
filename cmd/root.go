// Package cmd contains all cobra command definitions for the cmirror CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:   "cmirror",
	Short: "cmirror — Confluence Markdown mirror",
	Long: `cmirror keeps a Confluence page tree and a local Markdown directory in sync.

Remote pages are converted to Markdown for local editing; local edits are
converted back to Confluence storage format and published. Concurrent edits
on both sides are reconciled with a three-way merge. The audit command
inspects the mirrored state for stale pages, broken links and contributor
risk.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable verbose output (debug logging)")
	rootCmd.AddCommand(
		newInitCmd(),
		newDaemonCmd(),
		newPullCmd(),
		newPushCmd(),
		newStatusCmd(),
		newAuditCmd(),
	)
}
