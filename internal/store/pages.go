package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const pageColumns = `page_id, title, space_key, status, parent_id, ancestors,
	restricted, version, version_count, created_by, created_at, modified_by,
	last_modified, local_hash, base_hash, remote_hash, rel_path, sync_state,
	last_synced_at`

const upsertPageSQL = `INSERT INTO pages (` + pageColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (page_id) DO UPDATE SET
		title = excluded.title,
		space_key = excluded.space_key,
		status = excluded.status,
		parent_id = excluded.parent_id,
		ancestors = excluded.ancestors,
		restricted = excluded.restricted,
		version = excluded.version,
		version_count = excluded.version_count,
		created_by = excluded.created_by,
		created_at = excluded.created_at,
		modified_by = excluded.modified_by,
		last_modified = excluded.last_modified,
		local_hash = excluded.local_hash,
		base_hash = excluded.base_hash,
		remote_hash = excluded.remote_hash,
		rel_path = excluded.rel_path,
		sync_state = excluded.sync_state,
		last_synced_at = excluded.last_synced_at`

// UpsertPage inserts or fully replaces a page record.
func (s *Store) UpsertPage(ctx context.Context, p Page) error {
	if p.ID == "" {
		return errors.New("store: page id required")
	}
	ancestors, err := json.Marshal(ancestorsOrEmpty(p.Ancestors))
	if err != nil {
		return fmt.Errorf("encode ancestors: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertPageSQL,
		p.ID, p.Title, p.SpaceKey, p.Status, p.ParentID, string(ancestors),
		boolToInt(p.Restricted), p.Version, p.VersionCount,
		p.CreatedBy, formatTime(p.CreatedAt), p.ModifiedBy, formatTime(p.LastModified),
		p.LocalHash, p.BaseHash, p.RemoteHash, p.RelPath, string(p.SyncState),
		formatTime(p.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("upsert page %s: %w", p.ID, err)
	}
	return nil
}

// GetPage returns the record for pageID, or ErrNotFound.
func (s *Store) GetPage(ctx context.Context, pageID string) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE page_id = ?`, pageID)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, fmt.Errorf("page %s: %w", pageID, ErrNotFound)
	}
	return p, err
}

// DeletePage removes a page record along with its labels, contributors and
// outgoing links.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`DELETE FROM links WHERE source_id = ?`,
			`DELETE FROM page_labels WHERE page_id = ?`,
			`DELETE FROM contributors WHERE page_id = ?`,
			`DELETE FROM pages WHERE page_id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, pageID); err != nil {
				return fmt.Errorf("delete page %s: %w", pageID, err)
			}
		}
		return nil
	})
}

// ListPages returns the pages matching filter, ordered by page id.
func (s *Store) ListPages(ctx context.Context, filter ListFilter) ([]Page, error) {
	var (
		where []string
		args  []any
	)
	if filter.SpaceKey != "" {
		where = append(where, "p.space_key = ?")
		args = append(args, filter.SpaceKey)
	}
	if filter.Label != "" {
		where = append(where, "p.page_id IN (SELECT page_id FROM page_labels WHERE label = ?)")
		args = append(args, filter.Label)
	}
	if filter.AncestorID != "" {
		// Ancestors are stored as a JSON array of quoted ids.
		where = append(where, `p.ancestors LIKE '%"' || ? || '"%'`)
		args = append(args, filter.AncestorID)
	}
	if !filter.ModifiedBefore.IsZero() {
		where = append(where, "p.last_modified != '' AND p.last_modified < ?")
		args = append(args, formatTime(filter.ModifiedBefore))
	}
	if filter.Status != "" {
		where = append(where, "p.status = ?")
		args = append(args, filter.Status)
	}
	if filter.Restricted != nil {
		where = append(where, "p.restricted = ?")
		args = append(args, boolToInt(*filter.Restricted))
	}
	if filter.MinVersionCount > 0 {
		where = append(where, "p.version_count >= ?")
		args = append(args, filter.MinVersionCount)
	}
	if filter.SyncState != "" {
		where = append(where, "p.sync_state = ?")
		args = append(args, string(filter.SyncState))
	}

	query := `SELECT ` + pageColumns + ` FROM pages p`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY p.page_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// GetOrphanedPages returns pages with no parent and no incoming internal
// links. The space home page is never an orphan; callers exclude it by id.
func (s *Store) GetOrphanedPages(ctx context.Context, excludeIDs ...string) ([]Page, error) {
	query := `SELECT ` + pageColumns + ` FROM pages
		WHERE parent_id = ''
		AND page_id NOT IN (
			SELECT target_page_id FROM links
			WHERE target_page_id IS NOT NULL AND target_page_id != ''
		)`
	args := make([]any, 0, len(excludeIDs))
	if len(excludeIDs) > 0 {
		query += ` AND page_id NOT IN (` + placeholders(len(excludeIDs)) + `)`
		for _, id := range excludeIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY page_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orphaned pages: %w", err)
	}
	defer rows.Close()
	return collectPages(rows)
}

// CountChildren returns how many stored pages name pageID as their parent.
func (s *Store) CountChildren(ctx context.Context, pageID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pages WHERE parent_id = ?`, pageID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count children of %s: %w", pageID, err)
	}
	return count, nil
}

// GetPageByPath returns the page bound to a workspace-relative path.
func (s *Store) GetPageByPath(ctx context.Context, relPath string) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM pages WHERE rel_path = ?`, relPath)
	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, fmt.Errorf("path %s: %w", relPath, ErrNotFound)
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (Page, error) {
	var (
		p                                   Page
		ancestors                           string
		restricted                          int
		createdAt, lastModified, lastSynced string
		state                               string
	)
	err := row.Scan(&p.ID, &p.Title, &p.SpaceKey, &p.Status, &p.ParentID, &ancestors,
		&restricted, &p.Version, &p.VersionCount, &p.CreatedBy, &createdAt,
		&p.ModifiedBy, &lastModified, &p.LocalHash, &p.BaseHash, &p.RemoteHash,
		&p.RelPath, &state, &lastSynced)
	if err != nil {
		return Page{}, err
	}
	if err := json.Unmarshal([]byte(ancestors), &p.Ancestors); err != nil {
		return Page{}, fmt.Errorf("decode ancestors of %s: %w", p.ID, err)
	}
	p.Restricted = restricted != 0
	p.CreatedAt = parseTime(createdAt)
	p.LastModified = parseTime(lastModified)
	p.LastSyncedAt = parseTime(lastSynced)
	p.SyncState = SyncState(state)
	return p, nil
}

func collectPages(rows *sql.Rows) ([]Page, error) {
	var out []Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func ancestorsOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
