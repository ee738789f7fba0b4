package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"), Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.UpsertPage(context.Background(), Page{ID: "1", Title: "Home"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Migrations must be idempotent across reopen.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if _, err := s2.GetPage(context.Background(), "1"); err != nil {
		t.Fatalf("page lost across reopen: %v", err)
	}
}

func TestPageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	modified := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	page := Page{
		ID:           "100",
		Title:        "API Guide",
		SpaceKey:     "DOCS",
		Status:       "current",
		ParentID:     "1",
		Ancestors:    []string{"1", "50"},
		Restricted:   true,
		Version:      7,
		VersionCount: 7,
		CreatedBy:    "acc-alice",
		ModifiedBy:   "acc-bob",
		LastModified: modified,
		LocalHash:    "aaa",
		BaseHash:     "aaa",
		RemoteHash:   "aaa",
		RelPath:      "api-guide.md",
		SyncState:    StateSynced,
	}
	if err := s.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPage(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "API Guide" || got.SpaceKey != "DOCS" || !got.Restricted {
		t.Errorf("page = %+v", got)
	}
	if len(got.Ancestors) != 2 || got.Ancestors[0] != "1" || got.Ancestors[1] != "50" {
		t.Errorf("ancestors = %v", got.Ancestors)
	}
	if !got.LastModified.Equal(modified) {
		t.Errorf("last modified = %v, want %v", got.LastModified, modified)
	}
	if got.SyncState != StateSynced {
		t.Errorf("sync state = %q", got.SyncState)
	}

	// Upsert replaces.
	page.Version = 8
	page.SyncState = StateRemoteModified
	if err := s.UpsertPage(ctx, page); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetPage(ctx, "100")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != 8 || got.SyncState != StateRemoteModified {
		t.Errorf("after update: %+v", got)
	}

	byPath, err := s.GetPageByPath(ctx, "api-guide.md")
	if err != nil {
		t.Fatal(err)
	}
	if byPath.ID != "100" {
		t.Errorf("path lookup returned %q", byPath.ID)
	}

	if err := s.DeletePage(ctx, "100"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetPage(ctx, "100"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestListPagesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	restricted := true
	old := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	pages := []Page{
		{ID: "1", Title: "Home", SpaceKey: "DOCS", Status: "current", LastModified: recent, VersionCount: 2},
		{ID: "2", Title: "Old Guide", SpaceKey: "DOCS", Status: "current", ParentID: "1",
			Ancestors: []string{"1"}, LastModified: old, VersionCount: 30},
		{ID: "3", Title: "Secret", SpaceKey: "DOCS", Status: "current", ParentID: "1",
			Ancestors: []string{"1"}, Restricted: true, LastModified: recent, VersionCount: 4},
		{ID: "4", Title: "Other Space", SpaceKey: "ENG", Status: "draft", LastModified: recent, VersionCount: 1},
	}
	for _, p := range pages {
		if err := s.UpsertPage(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SetPageLabels(ctx, "2", []string{"deprecated"}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   []string
	}{
		{"all", ListFilter{}, []string{"1", "2", "3", "4"}},
		{"space", ListFilter{SpaceKey: "ENG"}, []string{"4"}},
		{"label", ListFilter{Label: "deprecated"}, []string{"2"}},
		{"ancestor", ListFilter{AncestorID: "1"}, []string{"2", "3"}},
		{"modified before", ListFilter{ModifiedBefore: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}, []string{"2"}},
		{"status", ListFilter{Status: "draft"}, []string{"4"}},
		{"restricted", ListFilter{Restricted: &restricted}, []string{"3"}},
		{"churn", ListFilter{MinVersionCount: 20}, []string{"2"}},
		{"combined", ListFilter{SpaceKey: "DOCS", AncestorID: "1", Restricted: &restricted}, []string{"3"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListPages(ctx, tc.filter)
			if err != nil {
				t.Fatal(err)
			}
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = p.ID
			}
			if len(ids) != len(tc.want) {
				t.Fatalf("ids = %v, want %v", ids, tc.want)
			}
			for i := range ids {
				if ids[i] != tc.want[i] {
					t.Fatalf("ids = %v, want %v", ids, tc.want)
				}
			}
		})
	}
}

func TestOrphanedPages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []Page{
		{ID: "home", Title: "Home"},
		{ID: "child", Title: "Child", ParentID: "home"},
		{ID: "linked", Title: "Linked"},
		{ID: "orphan", Title: "Orphan"},
	} {
		if err := s.UpsertPage(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	// "linked" has no parent but is the target of an internal edge.
	if err := s.SetPageLinks(ctx, "child", []Link{
		{TargetPageID: "linked", TargetPath: "linked.md", Type: "internal"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOrphanedPages(ctx, "home")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "orphan" {
		t.Errorf("orphans = %+v", got)
	}
}

func TestSetPageLinksReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []Link{
		{TargetPath: "a.md", Type: "internal", TargetPageID: "a", Text: "A", Line: 3},
		{TargetPath: "https://example.com", Type: "external", Text: "site", Line: 9},
	}
	if err := s.SetPageLinks(ctx, "src", first); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPageLinks(ctx, "src", []Link{
		{TargetPath: "b.md", Type: "internal", TargetPageID: "b"},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetOutgoingLinks(ctx, "src")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TargetPath != "b.md" {
		t.Errorf("outgoing = %+v", got)
	}

	incoming, err := s.GetIncomingLinks(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(incoming) != 1 || incoming[0].SourceID != "src" {
		t.Errorf("incoming = %+v", incoming)
	}
}

func TestExternalAndBrokenLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetPageLinks(ctx, "p1", []Link{
		{TargetPath: "https://example.com/dead", Type: "external"},
		{TargetPath: "missing.md", Type: "internal", Broken: true},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetPageLinks(ctx, "p2", []Link{
		{TargetPath: "https://example.com/dead", Type: "external"},
	}); err != nil {
		t.Fatal(err)
	}

	external, err := s.GetExternalLinks(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(external) != 2 {
		t.Fatalf("external = %+v", external)
	}
	scoped, err := s.GetExternalLinks(ctx, "p2")
	if err != nil {
		t.Fatal(err)
	}
	if len(scoped) != 1 || scoped[0].SourceID != "p2" {
		t.Errorf("scoped external = %+v", scoped)
	}

	// Flagging by URL hits every page holding the edge.
	if err := s.SetExternalLinkBroken(ctx, "https://example.com/dead", true); err != nil {
		t.Fatal(err)
	}
	broken, err := s.GetBrokenLinks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(broken) != 3 {
		t.Errorf("broken = %+v", broken)
	}
}

func TestLabels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetPageLabels(ctx, "p1", []string{"runbook", "api", ""}); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetPageLabels(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "api" || got[1] != "runbook" {
		t.Errorf("labels = %v", got)
	}

	if err := s.SetPageLabels(ctx, "p2", []string{"api"}); err != nil {
		t.Fatal(err)
	}
	withLabel, err := s.GetPagesWithLabel(ctx, "api")
	if err != nil {
		t.Fatal(err)
	}
	if len(withLabel) != 2 || withLabel[0] != "p1" || withLabel[1] != "p2" {
		t.Errorf("pages with label = %v", withLabel)
	}

	// Replace drops labels no longer present.
	if err := s.SetPageLabels(ctx, "p1", []string{"runbook"}); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetPageLabels(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "runbook" {
		t.Errorf("labels after replace = %v", got)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active := true
	checked := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpsertUser(ctx, User{
		AccountID:     "acc-1",
		DisplayName:   "Alice",
		Email:         "alice@example.com",
		Active:        &active,
		LastCheckedAt: checked,
	}); err != nil {
		t.Fatal(err)
	}
	// Status never verified: Active stays nil.
	if err := s.UpsertUser(ctx, User{AccountID: "acc-2", DisplayName: "Bob"}); err != nil {
		t.Fatal(err)
	}

	alice, err := s.GetUser(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if alice.Active == nil || !*alice.Active || !alice.LastCheckedAt.Equal(checked) {
		t.Errorf("alice = %+v", alice)
	}
	bob, err := s.GetUser(ctx, "acc-2")
	if err != nil {
		t.Fatal(err)
	}
	if bob.Active != nil {
		t.Errorf("unverified user must have nil Active: %+v", bob)
	}

	stale, err := s.GetStaleUserChecks(ctx, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 2 || stale[0].AccountID != "acc-2" {
		t.Errorf("stale checks = %+v", stale)
	}
}

func TestContributors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetPageContributors(ctx, "p1", []Contributor{
		{AccountID: "acc-2", ContributionCount: 3},
		{AccountID: "acc-1", ContributionCount: 12,
			LastContributedAt: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)},
	}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetPageContributors(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].AccountID != "acc-1" || got[0].ContributionCount != 12 {
		t.Errorf("contributors = %+v", got)
	}

	if err := s.SetPageContributors(ctx, "p1", []Contributor{
		{AccountID: "acc-1", ContributionCount: 13},
	}); err != nil {
		t.Fatal(err)
	}
	got, err = s.GetPageContributors(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ContributionCount != 13 {
		t.Errorf("contributors after replace = %+v", got)
	}
}

func TestMeta(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	value, err := s.GetMeta(ctx, MetaHashAlgorithm)
	if err != nil {
		t.Fatal(err)
	}
	if value != "" {
		t.Errorf("unset meta = %q", value)
	}

	if err := s.SetMeta(ctx, MetaHashAlgorithm, "sha256"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMeta(ctx, MetaHashAlgorithm, "sha256"); err != nil {
		t.Fatal(err)
	}
	value, err = s.GetMeta(ctx, MetaHashAlgorithm)
	if err != nil {
		t.Fatal(err)
	}
	if value != "sha256" {
		t.Errorf("meta = %q", value)
	}
}

func TestBaseCache(t *testing.T) {
	cache, err := NewBaseCache(filepath.Join(t.TempDir(), "cache"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Read("123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing base err = %v, want ErrNotFound", err)
	}

	if err := cache.Write("123", "# Guide\n\nBody.\n"); err != nil {
		t.Fatal(err)
	}
	got, err := cache.Read("123")
	if err != nil {
		t.Fatal(err)
	}
	if got != "# Guide\n\nBody.\n" {
		t.Errorf("base = %q", got)
	}

	if err := cache.Write("123", "updated\n"); err != nil {
		t.Fatal(err)
	}
	got, err = cache.Read("123")
	if err != nil {
		t.Fatal(err)
	}
	if got != "updated\n" {
		t.Errorf("base after rewrite = %q", got)
	}

	if err := cache.Remove("123"); err != nil {
		t.Fatal(err)
	}
	if err := cache.Remove("123"); err != nil {
		t.Errorf("removing absent base: %v", err)
	}
	if _, err := cache.Read("123"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after remove err = %v", err)
	}
}

func TestDeriveState(t *testing.T) {
	tests := []struct {
		name                string
		local, base, remote string
		want                SyncState
	}{
		{"synced", "a", "a", "a", StateSynced},
		{"local modified", "b", "a", "a", StateLocalModified},
		{"remote modified", "a", "a", "b", StateRemoteModified},
		{"diverged", "b", "a", "c", StateConflict},
		{"never mirrored", "", "", "a", StateUnsynced},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveState(tc.local, tc.base, tc.remote); got != tc.want {
				t.Errorf("DeriveState(%q, %q, %q) = %q, want %q",
					tc.local, tc.base, tc.remote, got, tc.want)
			}
		})
	}
}
