package store

import "time"

// SyncState describes where a page sits in the reconciliation lifecycle.
type SyncState string

const (
	// StateSynced means local, base and remote hashes all agree.
	StateSynced SyncState = "synced"
	// StateLocalModified means only the local copy diverged from base.
	StateLocalModified SyncState = "local_modified"
	// StateRemoteModified means only the remote copy diverged from base.
	StateRemoteModified SyncState = "remote_modified"
	// StateConflict means both sides diverged from base; the page needs a
	// merge, or a merge already left conflict markers awaiting a human.
	StateConflict SyncState = "conflict"
	// StateUnsynced means the page is known remotely but has no local copy.
	StateUnsynced SyncState = "unsynced"
	// StateUntracked means a local file is not bound to any remote page.
	StateUntracked SyncState = "untracked"
)

// DeriveState classifies a page from its three content hashes. An empty
// localHash means the page has never been mirrored locally.
func DeriveState(localHash, baseHash, remoteHash string) SyncState {
	if localHash == "" {
		return StateUnsynced
	}
	localChanged := localHash != baseHash
	remoteChanged := remoteHash != baseHash
	switch {
	case !localChanged && !remoteChanged:
		return StateSynced
	case localChanged && !remoteChanged:
		return StateLocalModified
	case !localChanged && remoteChanged:
		return StateRemoteModified
	default:
		return StateConflict
	}
}

// Page is the stored record for one mirrored page.
type Page struct {
	ID           string
	Title        string
	SpaceKey     string
	Status       string
	ParentID     string
	Ancestors    []string
	Restricted   bool
	Version      int
	VersionCount int
	CreatedBy    string
	CreatedAt    time.Time
	ModifiedBy   string
	LastModified time.Time
	LocalHash    string
	BaseHash     string
	RemoteHash   string
	RelPath      string
	SyncState    SyncState
	LastSyncedAt time.Time
}

// Link is one stored outgoing edge of a page.
type Link struct {
	ID           int64
	SourceID     string
	TargetPageID string
	TargetPath   string
	Type         string
	Text         string
	Line         int
	Broken       bool
	DiscoveredAt time.Time
}

// User is a remote account tracked for contributor analysis. Active is nil
// when the account's status has never been verified.
type User struct {
	AccountID     string
	DisplayName   string
	Email         string
	Active        *bool
	LastCheckedAt time.Time
}

// Contributor records one user's edit history on one page.
type Contributor struct {
	PageID            string
	AccountID         string
	ContributionCount int
	LastContributedAt time.Time
}

// ListFilter narrows ListPages. Zero values mean "no constraint".
type ListFilter struct {
	SpaceKey        string
	Label           string
	AncestorID      string
	ModifiedBefore  time.Time
	Status          string
	Restricted      *bool
	MinVersionCount int
	SyncState       SyncState
}
