package mdfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspaceInit(t *testing.T) {
	w := Workspace{Root: t.TempDir()}

	if w.Exists() {
		t.Fatal("fresh directory should not be an initialized workspace")
	}
	if err := w.Init(); err != nil {
		t.Fatal(err)
	}
	if !w.Exists() {
		t.Fatal("workspace should exist after Init")
	}
	if _, err := os.Stat(w.CacheDir()); err != nil {
		t.Fatalf("cache dir missing: %v", err)
	}
}

func TestWorkspacePathIndexRoundTrip(t *testing.T) {
	w := Workspace{Root: t.TempDir()}
	if err := w.Init(); err != nil {
		t.Fatal(err)
	}

	ix := NewPathIndex()
	if err := ix.Bind("p1", "hello.md"); err != nil {
		t.Fatal(err)
	}
	if err := ix.Bind("p2", "guides/index.md"); err != nil {
		t.Fatal(err)
	}
	if err := w.SavePathIndex(ix); err != nil {
		t.Fatal(err)
	}

	loaded, err := w.LoadPathIndex()
	if err != nil {
		t.Fatal(err)
	}
	if p, _ := loaded.PathFor("p1"); p != "hello.md" {
		t.Fatalf("PathFor(p1) = %q", p)
	}
	if id, _ := loaded.PageAt("guides/index.md"); id != "p2" {
		t.Fatalf("PageAt = %q", id)
	}
}

func TestWorkspaceLoadPathIndexMissingFile(t *testing.T) {
	w := Workspace{Root: t.TempDir()}

	ix, err := w.LoadPathIndex()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ix.PathFor("anything"); ok {
		t.Fatal("empty index expected")
	}
}

func TestWorkspaceLoadPathIndexRejectsNewerSchema(t *testing.T) {
	w := Workspace{Root: t.TempDir()}
	if err := w.Init(); err != nil {
		t.Fatal(err)
	}
	raw := []byte(`{"schema_version": 99, "page_path_index": {}}` + "\n")
	if err := os.WriteFile(w.StatePath(), raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := w.LoadPathIndex(); err == nil {
		t.Fatal("newer schema version should be rejected")
	}
}

func TestIgnoreMatcher(t *testing.T) {
	dir := t.TempDir()
	patterns := "drafts/\n*.tmp.md\n"
	if err := os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte(patterns), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadIgnoreMatcher(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"drafts/wip.md", true},
		{"notes.tmp.md", true},
		{"notes.md", false},
		{StateDirName + "/state.db", true},
		{LockFileName, true},
		{IgnoreFileName, true},
		{".git/config", true},
	}
	for _, tc := range tests {
		if got := m.ShouldIgnore(tc.path); got != tc.want {
			t.Errorf("ShouldIgnore(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestIgnoreMatcherNoFile(t *testing.T) {
	m, err := LoadIgnoreMatcher(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if m.ShouldIgnore("regular.md") {
		t.Fatal("regular file should not be ignored")
	}
	if !m.ShouldIgnore(StateDirName + "/cache/p1.base") {
		t.Fatal("state dir is always ignored")
	}
}

func TestLockAcquireRelease(t *testing.T) {
	stateDir := t.TempDir()

	lock, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("lockfile unreadable: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("lockfile should contain the pid")
	}

	if _, err := AcquireLock(stateDir); err == nil {
		t.Fatal("second acquire should fail while held")
	}

	if err := lock.Release(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Fatalf("lockfile should be removed, stat err = %v", err)
	}

	again, err := AcquireLock(stateDir)
	if err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
	_ = again.Release()
}
