package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func setTestCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("CONFLUENCE_URL", "https://example.atlassian.net/wiki")
	t.Setenv("CONFLUENCE_EMAIL", "user@example.com")
	t.Setenv("CONFLUENCE_API_TOKEN", "token-123")
}

func TestRunInitScaffoldsWorkspace(t *testing.T) {
	dir := chdirTemp(t)
	setTestCredentials(t)

	cmd := newInitCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	flags := initFlags{
		scope:  "space",
		value:  "DOCS",
		poll:   time.Minute,
		policy: "merge",
	}
	require.NoError(t, runInit(cmd, flags))

	ws := mdfs.Workspace{Root: dir}
	cfg, err := config.LoadWorkspace(ws.ConfigPath())
	require.NoError(t, err)
	assert.Equal(t, config.ScopeSpace, cfg.ScopeKind)
	assert.Equal(t, "DOCS", cfg.ScopeValue)
	assert.Equal(t, "DOCS", cfg.SpaceKey)
	assert.Equal(t, time.Minute, cfg.Interval())

	assert.FileExists(t, filepath.Join(dir, mdfs.IgnoreFileName))

	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	for _, entry := range []string{mdfs.StateDirName + "/", ".env"} {
		assert.True(t, containsLine(string(gitignore), entry), ".gitignore missing %q", entry)
	}

	// Env credentials make the .env file unnecessary.
	assert.NoFileExists(t, filepath.Join(dir, ".env"))
	assert.Contains(t, out.String(), "Workspace initialized")
}

func TestRunInitIsIdempotent(t *testing.T) {
	dir := chdirTemp(t)
	setTestCredentials(t)

	flags := initFlags{scope: "page", value: "123", space: "DOCS", poll: 30 * time.Second, policy: "merge"}
	for i := 0; i < 2; i++ {
		cmd := newInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		require.NoError(t, runInit(cmd, flags), "run %d", i)
	}

	// Entries are appended once.
	gitignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(gitignore), ".env"), "gitignore:\n%s", gitignore)
}

func TestRunInitRejectsInvalidScope(t *testing.T) {
	chdirTemp(t)
	setTestCredentials(t)

	cmd := newInitCmd()
	cmd.SetOut(&bytes.Buffer{})
	err := runInit(cmd, initFlags{scope: "galaxy", value: "x", space: "DOCS"})
	require.Error(t, err)
}
