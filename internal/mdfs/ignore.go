package mdfs

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is the gitignore-style pattern file at the workspace root.
const IgnoreFileName = ".syncignore"

// alwaysIgnored are implicit patterns: the state directory and the lockfile
// must never be watched, walked or tracked.
var alwaysIgnored = []string{
	StateDirName + "/",
	LockFileName,
	IgnoreFileName,
	".git/",
}

// IgnoreMatcher answers shouldIgnore queries for workspace-relative paths.
// Patterns come from .syncignore plus the implicit set; it is loaded once at
// startup and is read-only afterwards.
type IgnoreMatcher struct {
	gi *ignore.GitIgnore
}

// LoadIgnoreMatcher reads .syncignore from workdir. A missing file yields a
// matcher with only the implicit patterns.
func LoadIgnoreMatcher(workdir string) (*IgnoreMatcher, error) {
	lines := append([]string{}, alwaysIgnored...)

	raw, err := os.ReadFile(filepath.Join(workdir, IgnoreFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		lines = append(lines, strings.Split(string(raw), "\n")...)
	}

	return &IgnoreMatcher{gi: ignore.CompileIgnoreLines(lines...)}, nil
}

// ShouldIgnore reports whether the workspace-relative path is excluded.
func (m *IgnoreMatcher) ShouldIgnore(relPath string) bool {
	return m.gi.MatchesPath(filepath.ToSlash(relPath))
}
