// Package audit inspects the state store and produces a plain-data report of
// documentation health: stale pages, orphans, broken and external links,
// contributor risks, label and status inventories, and churn.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"time"

	"github.com/rgonek/confluence-mirror/internal/linkcheck"
	"github.com/rgonek/confluence-mirror/internal/store"
)

// Severity ranks a stale finding.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// StaleConfig holds the month thresholds for stale detection. A page is
// stale at a severity when its last modification is at least that many
// months old; the highest matching severity wins.
type StaleConfig struct {
	HighMonths   int `json:"highMonths"`
	MediumMonths int `json:"mediumMonths"`
	LowMonths    int `json:"lowMonths"`
}

// minMonths returns the smallest enabled threshold, used for the store-level
// pre-filter.
func (c StaleConfig) minMonths() int {
	min := 0
	for _, months := range []int{c.HighMonths, c.MediumMonths, c.LowMonths} {
		if months > 0 && (min == 0 || months < min) {
			min = months
		}
	}
	return min
}

func (c StaleConfig) classify(lastModified, now time.Time) Severity {
	if lastModified.IsZero() {
		return ""
	}
	switch {
	case c.HighMonths > 0 && !lastModified.After(now.AddDate(0, -c.HighMonths, 0)):
		return SeverityHigh
	case c.MediumMonths > 0 && !lastModified.After(now.AddDate(0, -c.MediumMonths, 0)):
		return SeverityMedium
	case c.LowMonths > 0 && !lastModified.After(now.AddDate(0, -c.LowMonths, 0)):
		return SeverityLow
	default:
		return ""
	}
}

// Scope narrows every check to a slice of the mirrored tree. Filters are
// independent of the detection rules.
type Scope struct {
	Label        string `json:"label,omitempty"`
	AncestorID   string `json:"ancestorId,omitempty"`
	ExcludeLabel string `json:"excludeLabel,omitempty"`
}

// Config selects which checks run. Zero values disable a check.
type Config struct {
	Stale            *StaleConfig
	Orphans          bool
	BrokenLinks      bool
	Contributors     bool
	ExternalLinks    bool
	ValidateExternal bool
	RequiredLabel    string
	Restricted       bool
	Drafts           bool
	Archived         bool
	HighChurnMin     int
	Unsynced         bool
	Scope            Scope
	// HomePageID is excluded from orphan detection; the space home never
	// has a parent.
	HomePageID string
}

// AllLocal returns the canonical "--all" configuration: every check that
// needs only the state store. External-link HTTP validation and the
// remote-only comparison both need the network and stay opt-in.
func AllLocal(stale StaleConfig, requiredLabel string, churnMin int) Config {
	return Config{
		Stale:         &stale,
		Orphans:       true,
		BrokenLinks:   true,
		Contributors:  true,
		ExternalLinks: true,
		RequiredLabel: requiredLabel,
		Restricted:    true,
		Drafts:        true,
		Archived:      true,
		HighChurnMin:  churnMin,
	}
}

// PageRef identifies a page in a finding.
type PageRef struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Path         string    `json:"path,omitempty"`
	LastModified time.Time `json:"lastModified,omitempty"`
}

// StalePage is one stale finding.
type StalePage struct {
	PageRef
	Severity Severity `json:"severity"`
}

// BrokenLink is one broken edge finding.
type BrokenLink struct {
	SourceID   string `json:"sourceId"`
	SourcePath string `json:"sourcePath,omitempty"`
	Target     string `json:"target"`
	Type       string `json:"type"`
	Line       int    `json:"line,omitempty"`
}

// ContributorRisk is a bus-factor or no-maintainer finding.
type ContributorRisk struct {
	PageRef
	Contributors []string `json:"contributors"`
}

// ExternalLink is one external edge, optionally annotated with a live
// validation result.
type ExternalLink struct {
	SourceID   string `json:"sourceId"`
	URL        string `json:"url"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
	Broken     bool   `json:"broken,omitempty"`
}

// HostLinks groups external edges by host.
type HostLinks struct {
	Host  string         `json:"host"`
	Links []ExternalLink `json:"links"`
}

// ChurnPage is a high-churn finding.
type ChurnPage struct {
	PageRef
	VersionCount int `json:"versionCount"`
}

// RemotePage is the slice of remote metadata the unsynced check needs.
type RemotePage struct {
	ID           string
	Title        string
	LastModified time.Time
}

// RemoteLister supplies the in-scope remote page set for the unsynced check.
type RemoteLister interface {
	ListRemotePages(ctx context.Context) ([]RemotePage, error)
}

// Report is the plain-data audit result, ready for external formatters.
type Report struct {
	GeneratedAt   time.Time         `json:"generatedAt"`
	Scope         Scope             `json:"scope,omitempty"`
	Stale         []StalePage       `json:"stale,omitempty"`
	Orphans       []PageRef         `json:"orphans,omitempty"`
	BrokenLinks   []BrokenLink      `json:"brokenLinks,omitempty"`
	BusFactor     []ContributorRisk `json:"busFactor,omitempty"`
	NoMaintainer  []ContributorRisk `json:"noMaintainer,omitempty"`
	ExternalLinks []HostLinks       `json:"externalLinks,omitempty"`
	MissingLabel  []PageRef         `json:"missingLabel,omitempty"`
	Restricted    []PageRef         `json:"restricted,omitempty"`
	Drafts        []PageRef         `json:"drafts,omitempty"`
	Archived      []PageRef         `json:"archived,omitempty"`
	HighChurn     []ChurnPage       `json:"highChurn,omitempty"`
	Unsynced      []StalePage       `json:"unsynced,omitempty"`
}

// Engine runs audits against the state store.
type Engine struct {
	store   *store.Store
	checker *linkcheck.Checker
	remote  RemoteLister
	logger  *slog.Logger
	now     func() time.Time
}

// EngineOptions wires the engine's collaborators. Checker is required only
// when ValidateExternal is requested; Remote only for the unsynced check.
type EngineOptions struct {
	Checker *linkcheck.Checker
	Remote  RemoteLister
	Logger  *slog.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewEngine returns an audit engine over the given store.
func NewEngine(st *store.Store, opts EngineOptions) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{store: st, checker: opts.Checker, remote: opts.Remote, logger: logger, now: now}
}

// Run executes the configured checks and assembles the report.
func (e *Engine) Run(ctx context.Context, cfg Config) (Report, error) {
	now := e.now()
	report := Report{GeneratedAt: now, Scope: cfg.Scope}

	scoped, err := e.scopedPages(ctx, cfg.Scope, store.ListFilter{})
	if err != nil {
		return report, err
	}
	scopedIDs := make(map[string]store.Page, len(scoped))
	for _, p := range scoped {
		scopedIDs[p.ID] = p
	}

	if cfg.Stale != nil && cfg.Stale.minMonths() > 0 {
		report.Stale, err = e.stalePages(ctx, cfg, now)
		if err != nil {
			return report, err
		}
	}

	if cfg.Orphans {
		orphans, err := e.store.GetOrphanedPages(ctx, cfg.HomePageID)
		if err != nil {
			return report, err
		}
		for _, p := range orphans {
			if _, ok := scopedIDs[p.ID]; !ok {
				continue
			}
			report.Orphans = append(report.Orphans, pageRef(p))
		}
	}

	if cfg.BrokenLinks {
		broken, err := e.store.GetBrokenLinks(ctx)
		if err != nil {
			return report, err
		}
		for _, link := range broken {
			source, ok := scopedIDs[link.SourceID]
			if !ok {
				continue
			}
			report.BrokenLinks = append(report.BrokenLinks, BrokenLink{
				SourceID:   link.SourceID,
				SourcePath: source.RelPath,
				Target:     link.TargetPath,
				Type:       link.Type,
				Line:       link.Line,
			})
		}
	}

	if cfg.Contributors {
		report.BusFactor, report.NoMaintainer, err = e.contributorRisks(ctx, scoped)
		if err != nil {
			return report, err
		}
	}

	if cfg.ExternalLinks {
		report.ExternalLinks, err = e.externalLinks(ctx, scopedIDs, cfg.ValidateExternal)
		if err != nil {
			return report, err
		}
	}

	if cfg.RequiredLabel != "" {
		labeled, err := e.store.GetPagesWithLabel(ctx, cfg.RequiredLabel)
		if err != nil {
			return report, err
		}
		has := make(map[string]struct{}, len(labeled))
		for _, id := range labeled {
			has[id] = struct{}{}
		}
		for _, p := range scoped {
			if _, ok := has[p.ID]; !ok {
				report.MissingLabel = append(report.MissingLabel, pageRef(p))
			}
		}
	}

	for _, p := range scoped {
		if cfg.Restricted && p.Restricted {
			report.Restricted = append(report.Restricted, pageRef(p))
		}
		if cfg.Drafts && p.Status == "draft" {
			report.Drafts = append(report.Drafts, pageRef(p))
		}
		if cfg.Archived && p.Status == "archived" {
			report.Archived = append(report.Archived, pageRef(p))
		}
		if cfg.HighChurnMin > 0 && p.VersionCount >= cfg.HighChurnMin {
			report.HighChurn = append(report.HighChurn, ChurnPage{
				PageRef:      pageRef(p),
				VersionCount: p.VersionCount,
			})
		}
	}

	if cfg.Unsynced {
		report.Unsynced, err = e.unsyncedPages(ctx, cfg, now)
		if err != nil {
			return report, err
		}
	}

	return report, nil
}

// scopedPages lists pages matching both the scope and the extra filter,
// applying the exclude-label filter in memory.
func (e *Engine) scopedPages(ctx context.Context, scope Scope, filter store.ListFilter) ([]store.Page, error) {
	if scope.Label != "" {
		filter.Label = scope.Label
	}
	if scope.AncestorID != "" {
		filter.AncestorID = scope.AncestorID
	}
	pages, err := e.store.ListPages(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list pages in scope: %w", err)
	}
	if scope.ExcludeLabel == "" {
		return pages, nil
	}

	excluded, err := e.store.GetPagesWithLabel(ctx, scope.ExcludeLabel)
	if err != nil {
		return nil, fmt.Errorf("resolve exclude label: %w", err)
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		skip[id] = struct{}{}
	}
	kept := pages[:0]
	for _, p := range pages {
		if _, ok := skip[p.ID]; !ok {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func (e *Engine) stalePages(ctx context.Context, cfg Config, now time.Time) ([]StalePage, error) {
	// Pre-filter at the store: nothing newer than the smallest threshold
	// can be stale at any severity.
	cutoff := now.AddDate(0, -cfg.Stale.minMonths(), 0)
	pages, err := e.scopedPages(ctx, cfg.Scope, store.ListFilter{ModifiedBefore: cutoff})
	if err != nil {
		return nil, err
	}

	var out []StalePage
	for _, p := range pages {
		severity := cfg.Stale.classify(p.LastModified, now)
		if severity == "" {
			continue
		}
		out = append(out, StalePage{PageRef: pageRef(p), Severity: severity})
	}
	return out, nil
}

// contributorRisks flags bus-factor and no-maintainer pages. The two are
// mutually exclusive: a single-contributor page is bus-factor only.
func (e *Engine) contributorRisks(ctx context.Context, pages []store.Page) ([]ContributorRisk, []ContributorRisk, error) {
	var busFactor, noMaintainer []ContributorRisk
	for _, p := range pages {
		contributors, err := e.store.GetPageContributors(ctx, p.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("contributors of %s: %w", p.ID, err)
		}
		if len(contributors) == 0 {
			continue
		}

		names := make([]string, len(contributors))
		for i, c := range contributors {
			names[i] = c.AccountID
		}

		if len(contributors) == 1 {
			busFactor = append(busFactor, ContributorRisk{PageRef: pageRef(p), Contributors: names})
			continue
		}

		// Only a known-inactive status counts; unknown does not flag.
		allInactive := true
		for _, c := range contributors {
			user, err := e.store.GetUser(ctx, c.AccountID)
			if err != nil || user.Active == nil || *user.Active {
				allInactive = false
				break
			}
		}
		if allInactive {
			noMaintainer = append(noMaintainer, ContributorRisk{PageRef: pageRef(p), Contributors: names})
		}
	}
	return busFactor, noMaintainer, nil
}

func (e *Engine) externalLinks(ctx context.Context, scoped map[string]store.Page, validate bool) ([]HostLinks, error) {
	edges, err := e.store.GetExternalLinks(ctx, "")
	if err != nil {
		return nil, err
	}

	var inScope []store.Link
	for _, edge := range edges {
		if _, ok := scoped[edge.SourceID]; ok {
			inScope = append(inScope, edge)
		}
	}
	if len(inScope) == 0 {
		return nil, nil
	}

	var results map[string]linkcheck.Result
	if validate && e.checker != nil {
		urls := make([]string, len(inScope))
		for i, edge := range inScope {
			urls[i] = edge.TargetPath
		}
		results = e.checker.Check(ctx, urls)
		for target, result := range results {
			if err := e.store.SetExternalLinkBroken(ctx, target, result.Broken); err != nil {
				e.logger.Warn("persisting link validation failed", "url", target, "error", err)
			}
		}
	}

	byHost := make(map[string][]ExternalLink)
	for _, edge := range inScope {
		link := ExternalLink{SourceID: edge.SourceID, URL: edge.TargetPath}
		if result, ok := results[edge.TargetPath]; ok {
			link.StatusCode = result.StatusCode
			link.Error = result.Err
			link.Broken = result.Broken
		}
		host := linkHost(edge.TargetPath)
		byHost[host] = append(byHost[host], link)
	}

	hosts := make([]string, 0, len(byHost))
	for host := range byHost {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	out := make([]HostLinks, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, HostLinks{Host: host, Links: byHost[host]})
	}
	return out, nil
}

func (e *Engine) unsyncedPages(ctx context.Context, cfg Config, now time.Time) ([]StalePage, error) {
	if e.remote == nil {
		return nil, fmt.Errorf("audit: unsynced check requires a remote connection")
	}
	remote, err := e.remote.ListRemotePages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote pages: %w", err)
	}

	known, err := e.store.ListPages(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}
	knownIDs := make(map[string]struct{}, len(known))
	for _, p := range known {
		// Tracked but never pulled still counts as unmirrored.
		if p.SyncState == store.StateUnsynced {
			continue
		}
		knownIDs[p.ID] = struct{}{}
	}

	var out []StalePage
	for _, rp := range remote {
		if _, ok := knownIDs[rp.ID]; ok {
			continue
		}
		finding := StalePage{PageRef: PageRef{
			ID:           rp.ID,
			Title:        rp.Title,
			LastModified: rp.LastModified,
		}}
		if cfg.Stale != nil {
			finding.Severity = cfg.Stale.classify(rp.LastModified, now)
		}
		out = append(out, finding)
	}
	return out, nil
}

func pageRef(p store.Page) PageRef {
	return PageRef{ID: p.ID, Title: p.Title, Path: p.RelPath, LastModified: p.LastModified}
}

func linkHost(target string) string {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Host == "" {
		return target
	}
	return parsed.Host
}
