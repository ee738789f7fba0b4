package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ScopeKind declares which pages a workspace mirrors.
type ScopeKind string

const (
	// ScopePage mirrors a single page.
	ScopePage ScopeKind = "page"
	// ScopeAncestor mirrors the subtree under an ancestor page.
	ScopeAncestor ScopeKind = "ancestor"
	// ScopeSpace mirrors a whole space.
	ScopeSpace ScopeKind = "space"
)

// ConflictPolicy selects how an unmergeable three-way conflict resolves.
type ConflictPolicy string

const (
	// PolicyMerge writes conflict markers and waits for the user.
	PolicyMerge ConflictPolicy = "merge"
	// PolicyLocal force-pushes the local body.
	PolicyLocal ConflictPolicy = "local"
	// PolicyRemote force-pulls the remote body.
	PolicyRemote ConflictPolicy = "remote"
)

// ErrInvalidScope is returned for a scope that names no page or space.
var ErrInvalidScope = errors.New("invalid scope")

// Workspace is the per-workspace configuration persisted in
// .syncroot/config.json.
type Workspace struct {
	ScopeKind ScopeKind `json:"scope_kind"`
	// ScopeValue is a page id for page/ancestor scope, a space key for
	// space scope.
	ScopeValue string `json:"scope_value"`
	SpaceKey   string `json:"space_key"`
	BaseURL    string `json:"base_url"`

	PollInterval   Duration       `json:"poll_interval,omitempty"`
	WebhookPort    int            `json:"webhook_port,omitempty"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy,omitempty"`
	AutoCreate     bool           `json:"auto_create,omitempty"`
}

// Duration marshals as a Go duration string ("30s") in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(raw []byte) error {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Validate checks the workspace config for startup.
func (w Workspace) Validate() error {
	switch w.ScopeKind {
	case ScopePage, ScopeAncestor, ScopeSpace:
	default:
		return fmt.Errorf("%w: unknown scope kind %q", ErrInvalidScope, w.ScopeKind)
	}
	if w.ScopeValue == "" {
		return fmt.Errorf("%w: empty scope value", ErrInvalidScope)
	}
	if w.SpaceKey == "" {
		return fmt.Errorf("%w: space key is required", ErrInvalidScope)
	}
	switch w.ConflictPolicy {
	case "", PolicyMerge, PolicyLocal, PolicyRemote:
	default:
		return fmt.Errorf("unknown conflict policy %q", w.ConflictPolicy)
	}
	return nil
}

// Policy returns the configured conflict policy, defaulting to merge.
func (w Workspace) Policy() ConflictPolicy {
	if w.ConflictPolicy == "" {
		return PolicyMerge
	}
	return w.ConflictPolicy
}

// Interval returns the poll interval, defaulting to 30 seconds.
func (w Workspace) Interval() time.Duration {
	if w.PollInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(w.PollInterval)
}

// LoadWorkspace reads and validates the workspace config at path.
func LoadWorkspace(path string) (*Workspace, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workspace config: %w", err)
	}
	var w Workspace
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse workspace config %s: %w", path, err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// SaveWorkspace writes the workspace config to path.
func SaveWorkspace(path string, w Workspace) error {
	if err := w.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workspace config: %w", err)
	}
	raw = append(raw, '\n')
	return os.WriteFile(path, raw, 0o644)
}
