package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertUser inserts or replaces a tracked user record.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	if u.AccountID == "" {
		return errors.New("store: account id required")
	}
	var active any
	if u.Active != nil {
		active = boolToInt(*u.Active)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users
		(account_id, display_name, email, is_active, last_checked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			is_active = excluded.is_active,
			last_checked_at = excluded.last_checked_at`,
		u.AccountID, u.DisplayName, u.Email, active, formatTime(u.LastCheckedAt))
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.AccountID, err)
	}
	return nil
}

// GetUser returns a tracked user, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, accountID string) (User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT account_id, display_name, email, is_active, last_checked_at
		FROM users WHERE account_id = ?`, accountID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", accountID, ErrNotFound)
	}
	return u, err
}

// GetStaleUserChecks returns users whose account status was last verified
// before cutoff (or never), oldest first, up to limit.
func (s *Store) GetStaleUserChecks(ctx context.Context, cutoff time.Time, limit int) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, display_name, email, is_active, last_checked_at
		FROM users WHERE last_checked_at = '' OR last_checked_at < ?
		ORDER BY last_checked_at, account_id LIMIT ?`,
		formatTime(cutoff), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale user checks: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanUser(row rowScanner) (User, error) {
	var (
		u       User
		active  sql.NullInt64
		checked string
	)
	if err := row.Scan(&u.AccountID, &u.DisplayName, &u.Email, &active, &checked); err != nil {
		return User{}, err
	}
	if active.Valid {
		value := active.Int64 != 0
		u.Active = &value
	}
	u.LastCheckedAt = parseTime(checked)
	return u, nil
}

// SetPageContributors atomically replaces a page's contributor rows.
func (s *Store) SetPageContributors(ctx context.Context, pageID string, contributors []Contributor) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM contributors WHERE page_id = ?`, pageID); err != nil {
			return fmt.Errorf("clear contributors of %s: %w", pageID, err)
		}
		for _, c := range contributors {
			if c.AccountID == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO contributors
				(page_id, account_id, contribution_count, last_contributed_at)
				VALUES (?, ?, ?, ?)`,
				pageID, c.AccountID, c.ContributionCount, formatTime(c.LastContributedAt)); err != nil {
				return fmt.Errorf("insert contributor %s on %s: %w", c.AccountID, pageID, err)
			}
		}
		return nil
	})
}

// GetPageContributors returns a page's contributors, most edits first.
func (s *Store) GetPageContributors(ctx context.Context, pageID string) ([]Contributor, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id, account_id, contribution_count, last_contributed_at
		FROM contributors WHERE page_id = ?
		ORDER BY contribution_count DESC, account_id`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list contributors of %s: %w", pageID, err)
	}
	defer rows.Close()

	var out []Contributor
	for rows.Next() {
		var (
			c    Contributor
			last string
		)
		if err := rows.Scan(&c.PageID, &c.AccountID, &c.ContributionCount, &last); err != nil {
			return nil, fmt.Errorf("scan contributor: %w", err)
		}
		c.LastContributedAt = parseTime(last)
		out = append(out, c)
	}
	return out, rows.Err()
}
