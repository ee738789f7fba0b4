package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const linkColumns = `link_id, source_id, target_page_id, target_path,
	link_type, link_text, line, is_broken, discovered_at`

// SetPageLinks atomically replaces a page's outgoing edges. Callers resolve
// TargetPageID and the Broken flag before writing.
func (s *Store) SetPageLinks(ctx context.Context, pageID string, links []Link) error {
	now := formatTime(time.Now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE source_id = ?`, pageID); err != nil {
			return fmt.Errorf("clear links of %s: %w", pageID, err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO links
			(source_id, target_page_id, target_path, link_type, link_text, line, is_broken, discovered_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare link insert: %w", err)
		}
		defer stmt.Close()

		for _, link := range links {
			discovered := formatTime(link.DiscoveredAt)
			if discovered == "" {
				discovered = now
			}
			var target any
			if link.TargetPageID != "" {
				target = link.TargetPageID
			}
			if _, err := stmt.ExecContext(ctx, pageID, target, link.TargetPath,
				link.Type, link.Text, link.Line, boolToInt(link.Broken), discovered); err != nil {
				return fmt.Errorf("insert link %s -> %s: %w", pageID, link.TargetPath, err)
			}
		}
		return nil
	})
}

// GetOutgoingLinks returns a page's edges in discovery order.
func (s *Store) GetOutgoingLinks(ctx context.Context, pageID string) ([]Link, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE source_id = ? ORDER BY link_id`, pageID)
}

// GetIncomingLinks returns the edges pointing at a page.
func (s *Store) GetIncomingLinks(ctx context.Context, pageID string) ([]Link, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE target_page_id = ? ORDER BY link_id`, pageID)
}

// GetBrokenLinks returns every edge flagged broken.
func (s *Store) GetBrokenLinks(ctx context.Context) ([]Link, error) {
	return s.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE is_broken = 1 ORDER BY source_id, link_id`)
}

// GetExternalLinks returns external edges, optionally restricted to one
// source page when pageID is non-empty.
func (s *Store) GetExternalLinks(ctx context.Context, pageID string) ([]Link, error) {
	if pageID != "" {
		return s.queryLinks(ctx,
			`SELECT `+linkColumns+` FROM links WHERE link_type = 'external' AND source_id = ? ORDER BY link_id`,
			pageID)
	}
	return s.queryLinks(ctx,
		`SELECT `+linkColumns+` FROM links WHERE link_type = 'external' ORDER BY source_id, link_id`)
}

// SetExternalLinkBroken flags (or clears) every external edge targeting url,
// regardless of which page holds it.
func (s *Store) SetExternalLinkBroken(ctx context.Context, url string, broken bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE links SET is_broken = ? WHERE link_type = 'external' AND target_path = ?`,
		boolToInt(broken), url)
	if err != nil {
		return fmt.Errorf("flag external link %s: %w", url, err)
	}
	return nil
}

func (s *Store) queryLinks(ctx context.Context, query string, args ...any) ([]Link, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var (
			link       Link
			target     sql.NullString
			broken     int
			discovered string
		)
		if err := rows.Scan(&link.ID, &link.SourceID, &target, &link.TargetPath,
			&link.Type, &link.Text, &link.Line, &broken, &discovered); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		link.TargetPageID = target.String
		link.Broken = broken != 0
		link.DiscoveredAt = parseTime(discovered)
		out = append(out, link)
	}
	return out, rows.Err()
}
