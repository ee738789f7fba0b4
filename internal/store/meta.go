package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known meta keys.
const (
	// MetaHashAlgorithm records the content hash algorithm in use.
	MetaHashAlgorithm = "hash_algorithm"
	// MetaLastPollAt records the completion time of the last remote poll.
	MetaLastPollAt = "last_poll_at"
	// MetaHomePageID records the id of the space home page.
	MetaHomePageID = "home_page_id"
)

// GetMeta returns the value for key, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a key/value pair, replacing any previous value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write meta %s: %w", key, err)
	}
	return nil
}
