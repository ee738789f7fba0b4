package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/rgonek/confluence-mirror/internal/audit"
	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/linkcheck"
	"github.com/rgonek/confluence-mirror/internal/store"
	"github.com/rgonek/confluence-mirror/internal/sync"
)

type auditFlags struct {
	stale        bool
	orphans      bool
	brokenLinks  bool
	contributors bool
	external     bool
	restricted   bool
	drafts       bool
	archived     bool
	churn        bool

	validate bool
	unsynced bool

	staleHigh     int
	staleMedium   int
	staleLow      int
	requiredLabel string
	churnMin      int

	label        string
	ancestor     string
	excludeLabel string
}

func newAuditCmd() *cobra.Command {
	var flags auditFlags
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit the mirrored pages and print a JSON report",
		Long: `Audit inspects the state store for documentation debt: stale pages,
orphans, broken links, contributor risk and unlabeled pages.

With no check flags every store-local check runs. External-link HTTP
validation (--validate) and the remote-only comparison (--unsynced) need
the network and stay opt-in. The report is JSON on stdout, ready for
external formatters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, flags)
		},
	}
	cmd.Flags().BoolVar(&flags.stale, "stale", false, "Detect stale pages")
	cmd.Flags().BoolVar(&flags.orphans, "orphans", false, "Detect orphaned pages")
	cmd.Flags().BoolVar(&flags.brokenLinks, "broken-links", false, "Report broken internal links")
	cmd.Flags().BoolVar(&flags.contributors, "contributors", false, "Detect bus-factor and no-maintainer pages")
	cmd.Flags().BoolVar(&flags.external, "external-links", false, "Inventory external links grouped by host")
	cmd.Flags().BoolVar(&flags.restricted, "restricted", false, "Inventory restricted pages")
	cmd.Flags().BoolVar(&flags.drafts, "drafts", false, "Inventory draft pages")
	cmd.Flags().BoolVar(&flags.archived, "archived", false, "Inventory archived pages")
	cmd.Flags().BoolVar(&flags.churn, "churn", false, "Detect high-churn pages")

	cmd.Flags().BoolVar(&flags.validate, "validate", false, "Validate external links over HTTP")
	cmd.Flags().BoolVar(&flags.unsynced, "unsynced", false, "Compare against the remote for unmirrored pages")

	cmd.Flags().IntVar(&flags.staleHigh, "stale-high", 12, "Months of inactivity for high severity")
	cmd.Flags().IntVar(&flags.staleMedium, "stale-medium", 6, "Months of inactivity for medium severity")
	cmd.Flags().IntVar(&flags.staleLow, "stale-low", 3, "Months of inactivity for low severity")
	cmd.Flags().StringVar(&flags.requiredLabel, "required-label", "", "Flag pages missing this label")
	cmd.Flags().IntVar(&flags.churnMin, "churn-min", 10, "Version count that counts as high churn")

	cmd.Flags().StringVar(&flags.label, "label", "", "Limit checks to pages carrying this label")
	cmd.Flags().StringVar(&flags.ancestor, "ancestor", "", "Limit checks to descendants of this page id")
	cmd.Flags().StringVar(&flags.excludeLabel, "exclude-label", "", "Skip pages carrying this label")
	return cmd
}

func runAudit(cmd *cobra.Command, flags auditFlags) error {
	logger := newLogger()
	ctx := cmd.Context()

	ws, cfg, err := openWorkspace()
	if err != nil {
		return err
	}
	st, err := store.Open(ws.DatabasePath(), store.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer st.Close()

	auditCfg := buildAuditConfig(flags)
	auditCfg.Scope = audit.Scope{
		Label:        flags.label,
		AncestorID:   flags.ancestor,
		ExcludeLabel: flags.excludeLabel,
	}
	if home, err := st.GetMeta(ctx, store.MetaHomePageID); err == nil {
		auditCfg.HomePageID = home
	}

	opts := audit.EngineOptions{Logger: logger}
	if auditCfg.ValidateExternal {
		opts.Checker = linkcheck.New(linkcheck.Options{})
	}
	if auditCfg.Unsynced {
		remote, err := newService(ws)
		if err != nil {
			return err
		}
		opts.Remote = scopeLister{remote: remote, cfg: *cfg}
	}

	report, err := audit.NewEngine(st, opts).Run(ctx, auditCfg)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// buildAuditConfig maps the flags onto check selection. No explicit check
// flag means "run everything local".
func buildAuditConfig(flags auditFlags) audit.Config {
	stale := audit.StaleConfig{
		HighMonths:   flags.staleHigh,
		MediumMonths: flags.staleMedium,
		LowMonths:    flags.staleLow,
	}

	anyExplicit := flags.stale || flags.orphans || flags.brokenLinks || flags.contributors ||
		flags.external || flags.restricted || flags.drafts || flags.archived || flags.churn

	var cfg audit.Config
	if !anyExplicit {
		cfg = audit.AllLocal(stale, flags.requiredLabel, flags.churnMin)
	} else {
		cfg = audit.Config{
			Orphans:       flags.orphans,
			BrokenLinks:   flags.brokenLinks,
			Contributors:  flags.contributors,
			ExternalLinks: flags.external,
			RequiredLabel: flags.requiredLabel,
			Restricted:    flags.restricted,
			Drafts:        flags.drafts,
			Archived:      flags.archived,
		}
		if flags.stale {
			cfg.Stale = &stale
		}
		if flags.churn {
			cfg.HighChurnMin = flags.churnMin
		}
	}
	if flags.validate {
		cfg.ExternalLinks = true
		cfg.ValidateExternal = true
	}
	cfg.Unsynced = flags.unsynced
	return cfg
}

// scopeLister adapts the remote service to the audit's remote-only check,
// resolving the workspace scope the same way the sync engine does.
type scopeLister struct {
	remote confluence.Service
	cfg    config.Workspace
}

func (l scopeLister) ListRemotePages(ctx context.Context) ([]audit.RemotePage, error) {
	pages, err := sync.ListScopePages(ctx, l.remote, l.cfg)
	if err != nil {
		return nil, err
	}
	out := make([]audit.RemotePage, 0, len(pages))
	for _, page := range pages {
		out = append(out, audit.RemotePage{
			ID:           page.ID,
			Title:        page.Title,
			LastModified: page.LastModified,
		})
	}
	return out, nil
}
