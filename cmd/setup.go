package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/store"
	"github.com/rgonek/confluence-mirror/internal/sync"
)

// newLogger builds the process logger; --verbose lowers the level to debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openWorkspace resolves the current directory as an initialized workspace
// and loads its configuration.
func openWorkspace() (mdfs.Workspace, *config.Workspace, error) {
	root, err := os.Getwd()
	if err != nil {
		return mdfs.Workspace{}, nil, err
	}
	ws := mdfs.Workspace{Root: root}
	if !ws.Exists() {
		return mdfs.Workspace{}, nil, fmt.Errorf("no workspace found in %s (run 'cmirror init' first)", root)
	}
	cfg, err := config.LoadWorkspace(ws.ConfigPath())
	if err != nil {
		return mdfs.Workspace{}, nil, err
	}
	return ws, cfg, nil
}

// newService builds the remote API client from environment credentials,
// reading a .env file at the workspace root when present.
func newService(ws mdfs.Workspace) (confluence.Service, error) {
	creds, err := config.LoadCredentials(filepath.Join(ws.Root, ".env"))
	if err != nil {
		return nil, err
	}
	return confluence.NewClient(confluence.ClientConfig{
		BaseURL:  creds.BaseURL,
		Email:    creds.Email,
		APIToken: creds.APIToken,
	})
}

// buildEngine wires a sync engine over the workspace. The caller owns the
// returned store and must close it.
func buildEngine(ws mdfs.Workspace, cfg *config.Workspace, logger *slog.Logger, events sync.EventSink) (*sync.Engine, *store.Store, error) {
	remote, err := newService(ws)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ws.DatabasePath(), store.Options{Logger: logger})
	if err != nil {
		return nil, nil, err
	}
	base, err := store.NewBaseCache(ws.CacheDir())
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	engine, err := sync.NewEngine(ws.Root, *cfg, sync.EngineOptions{
		Remote: remote,
		Store:  st,
		Base:   base,
		Events: events,
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	return engine, st, nil
}
