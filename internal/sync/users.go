package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/store"
)

const (
	// userCheckTTL is how long a cached activity status stays fresh.
	userCheckTTL = 24 * time.Hour
	// userLookupBatch bounds one bulk lookup request.
	userLookupBatch = 50
)

// RefreshUsers verifies the activity status of cached contributors whose
// last check is older than the TTL. Contributor-risk detection depends on
// this populating User.Active; pulls only seed accounts with an unknown
// status.
func (e *Engine) RefreshUsers(ctx context.Context) error {
	cutoff := time.Now().Add(-userCheckTTL)
	stale, err := e.store.GetStaleUserChecks(ctx, cutoff, userLookupBatch)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	ids := make([]string, 0, len(stale))
	for _, user := range stale {
		ids = append(ids, user.AccountID)
	}
	resolved, err := e.remote.LookupUsers(ctx, ids)
	if err != nil {
		return fmt.Errorf("look up %d users: %w", len(ids), err)
	}
	byID := make(map[string]confluence.User, len(resolved))
	for _, user := range resolved {
		byID[user.AccountID] = user
	}

	now := time.Now()
	for _, cached := range stale {
		update := store.User{
			AccountID:     cached.AccountID,
			DisplayName:   cached.DisplayName,
			Email:         cached.Email,
			Active:        cached.Active,
			LastCheckedAt: now,
		}
		// Accounts the remote no longer reports keep their last known
		// status; advancing the timestamp stops a hot retry loop.
		if user, ok := byID[cached.AccountID]; ok {
			update.DisplayName = user.DisplayName
			update.Email = user.Email
			update.Active = user.Active
		}
		if err := e.store.UpsertUser(ctx, update); err != nil {
			return err
		}
	}
	e.logger.Debug("refreshed user activity", "checked", len(stale))
	return nil
}
