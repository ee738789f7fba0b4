package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetPageLabels atomically replaces a page's label set.
func (s *Store) SetPageLabels(ctx context.Context, pageID string, labels []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM page_labels WHERE page_id = ?`, pageID); err != nil {
			return fmt.Errorf("clear labels of %s: %w", pageID, err)
		}
		for _, label := range labels {
			if label == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO page_labels (page_id, label) VALUES (?, ?)`,
				pageID, label); err != nil {
				return fmt.Errorf("insert label %s on %s: %w", label, pageID, err)
			}
		}
		return nil
	})
}

// GetPageLabels returns a page's labels sorted alphabetically.
func (s *Store) GetPageLabels(ctx context.Context, pageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label FROM page_labels WHERE page_id = ? ORDER BY label`, pageID)
	if err != nil {
		return nil, fmt.Errorf("list labels of %s: %w", pageID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		out = append(out, label)
	}
	return out, rows.Err()
}

// GetPagesWithLabel returns the ids of pages carrying a label.
func (s *Store) GetPagesWithLabel(ctx context.Context, label string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT page_id FROM page_labels WHERE label = ? ORDER BY page_id`, label)
	if err != nil {
		return nil, fmt.Errorf("list pages with label %s: %w", label, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan page id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
