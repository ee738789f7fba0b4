package mdfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// StateDirName is the hidden state directory at the workspace root.
	StateDirName = ".syncroot"
	// StateFileName holds the path index and schema version.
	StateFileName = "state.json"
	// CacheDirName holds per-page base content under the state directory.
	CacheDirName = "cache"

	stateSchemaVersion = 1
)

// Workspace resolves the well-known locations inside a mirrored directory.
type Workspace struct {
	Root string
}

// StateDir returns <root>/.syncroot.
func (w Workspace) StateDir() string {
	return filepath.Join(w.Root, StateDirName)
}

// CacheDir returns <root>/.syncroot/cache.
func (w Workspace) CacheDir() string {
	return filepath.Join(w.StateDir(), CacheDirName)
}

// StatePath returns <root>/.syncroot/state.json.
func (w Workspace) StatePath() string {
	return filepath.Join(w.StateDir(), StateFileName)
}

// DatabasePath returns <root>/.syncroot/state.db.
func (w Workspace) DatabasePath() string {
	return filepath.Join(w.StateDir(), "state.db")
}

// ConfigPath returns <root>/.syncroot/config.json.
func (w Workspace) ConfigPath() string {
	return filepath.Join(w.StateDir(), "config.json")
}

// Init creates the state directory tree if absent.
func (w Workspace) Init() error {
	if err := os.MkdirAll(w.CacheDir(), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	return nil
}

// Exists reports whether the workspace has been initialized.
func (w Workspace) Exists() bool {
	info, err := os.Stat(w.StateDir())
	return err == nil && info.IsDir()
}

// stateFile is the serialized form of state.json.
type stateFile struct {
	SchemaVersion int               `json:"schema_version"`
	PagePathIndex map[string]string `json:"page_path_index,omitempty"`
}

// LoadPathIndex reads state.json and restores the path index. A missing file
// returns an empty index.
func (w Workspace) LoadPathIndex() (*PathIndex, error) {
	ix := NewPathIndex()

	raw, err := os.ReadFile(w.StatePath())
	if err != nil {
		if os.IsNotExist(err) {
			return ix, nil
		}
		return nil, err
	}
	if len(raw) == 0 {
		return ix, nil
	}

	var state stateFile
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", w.StatePath(), err)
	}
	if state.SchemaVersion > stateSchemaVersion {
		return nil, fmt.Errorf("state file %s has schema version %d, newer than supported %d",
			w.StatePath(), state.SchemaVersion, stateSchemaVersion)
	}
	ix.Restore(state.PagePathIndex)
	return ix, nil
}

// SavePathIndex writes the path index snapshot back to state.json.
func (w Workspace) SavePathIndex(ix *PathIndex) error {
	state := stateFile{
		SchemaVersion: stateSchemaVersion,
		PagePathIndex: ix.Snapshot(),
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	raw = append(raw, '\n')

	if err := os.MkdirAll(w.StateDir(), 0o755); err != nil {
		return err
	}
	return os.WriteFile(w.StatePath(), raw, 0o644)
}
