package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/converter"
	"github.com/rgonek/confluence-mirror/internal/hashutil"
	"github.com/rgonek/confluence-mirror/internal/links"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/merge"
	"github.com/rgonek/confluence-mirror/internal/store"
)

// Pull fetches a remote page and writes it into the working tree: convert,
// place (handling moves), write with frontmatter, align all three hashes,
// replace the base snapshot and rebuild the page's link edges.
func (e *Engine) Pull(ctx context.Context, pageID string) error {
	page, err := e.remote.GetPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, confluence.ErrNotFound) {
			return e.markInaccessible(ctx, pageID, err)
		}
		return fmt.Errorf("fetch page %s: %w", pageID, err)
	}

	previousPath, hadPath := e.paths.PathFor(pageID)
	location := e.locationFor(ctx, page)
	relPath, err := mdfs.ResolvePath(e.paths, pageID, location)
	if err != nil {
		return fmt.Errorf("resolve path for %s: %w", pageID, err)
	}

	if hadPath && previousPath != relPath {
		if err := e.moveLocal(previousPath, relPath); err != nil {
			// Restore the old binding so the next pull retries the move.
			_ = e.paths.Bind(pageID, previousPath)
			return fmt.Errorf("move %s -> %s: %w", previousPath, relPath, err)
		}
		e.emit(EventStatus, pageID, relPath, fmt.Sprintf("moved from %s", previousPath), nil)
	}

	markdown, err := converter.Forward(page.BodyStorage, converter.ForwardOptions{
		AttachmentsDir: path.Base(mdfs.AttachmentsDir(relPath)),
	})
	if err != nil {
		return fmt.Errorf("convert page %s: %w", pageID, err)
	}

	// A dirty local copy must not be overwritten: compare the on-disk body
	// against the recorded base before touching the file.
	if known, kerr := e.store.GetPage(ctx, pageID); kerr == nil && known.BaseHash != "" {
		if local, derr := mdfs.ReadDocument(filepath.Join(e.root, filepath.FromSlash(relPath))); derr == nil {
			localHash := hashutil.HashNormalized(local.Body)
			remoteHash := hashutil.HashNormalized(markdown)
			switch store.DeriveState(localHash, known.BaseHash, remoteHash) {
			case store.StateConflict:
				if merge.HasConflictMarkers(local.Body) {
					if err := e.setSyncState(ctx, pageID, store.StateConflict); err != nil {
						return err
					}
					e.emit(EventConflict, pageID, relPath, "remote changed while conflict markers are unresolved", nil)
					return nil
				}
				known.RelPath = relPath
				return e.Merge(ctx, pageID, local, known, page)
			case store.StateLocalModified:
				// The remote body is unchanged; only metadata moved. Keep
				// the local edit pending push and record the new version.
				known.RelPath = relPath
				known.Version = page.Version
				known.LastModified = page.LastModified
				known.RemoteHash = remoteHash
				known.SyncState = store.StateLocalModified
				if err := e.store.UpsertPage(ctx, known); err != nil {
					return err
				}
				return e.ws.SavePathIndex(e.paths)
			}
		}
	}

	doc := mdfs.Document{
		Frontmatter: mdfs.Frontmatter{
			ID:      pageID,
			Title:   page.Title,
			Space:   page.SpaceKey,
			Version: page.Version,
		},
		Body: markdown,
	}
	if err := mdfs.WriteDocument(filepath.Join(e.root, filepath.FromSlash(relPath)), doc); err != nil {
		return fmt.Errorf("write page %s: %w", pageID, err)
	}

	hash := hashutil.HashNormalized(markdown)
	if err := e.base.Write(pageID, markdown); err != nil {
		return fmt.Errorf("write base of %s: %w", pageID, err)
	}

	record := pageRecord(page, relPath)
	record.LocalHash = hash
	record.BaseHash = hash
	record.RemoteHash = hash
	record.SyncState = store.StateSynced
	record.LastSyncedAt = time.Now()
	if err := e.store.UpsertPage(ctx, record); err != nil {
		return fmt.Errorf("persist page %s: %w", pageID, err)
	}

	if err := e.updateLinks(ctx, pageID, relPath, markdown); err != nil {
		return err
	}
	e.syncPageMetadata(ctx, page)

	if err := e.ws.SavePathIndex(e.paths); err != nil {
		return err
	}
	e.emit(EventPull, pageID, relPath, fmt.Sprintf("pulled version %d", page.Version), nil)
	return nil
}

// markInaccessible records a permanent remote failure so the engine stops
// retrying until the user intervenes.
func (e *Engine) markInaccessible(ctx context.Context, pageID string, cause error) error {
	known, err := e.store.GetPage(ctx, pageID)
	if err != nil {
		e.emit(EventError, pageID, "", "remote page not found", cause)
		return nil
	}
	known.Status = statusRemoteInaccessible
	if err := e.store.UpsertPage(ctx, known); err != nil {
		return err
	}
	e.emit(EventError, pageID, known.RelPath, "remote page no longer accessible", cause)
	return nil
}

// moveLocal renames a page file and its attachments directory.
func (e *Engine) moveLocal(fromRel, toRel string) error {
	from := filepath.Join(e.root, filepath.FromSlash(fromRel))
	to := filepath.Join(e.root, filepath.FromSlash(toRel))

	if _, err := os.Stat(from); errors.Is(err, os.ErrNotExist) {
		// Nothing on disk yet; the write below lands at the new path.
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	if err := os.Rename(from, to); err != nil {
		return err
	}

	fromAttach := filepath.Join(e.root, filepath.FromSlash(mdfs.AttachmentsDir(fromRel)))
	if _, err := os.Stat(fromAttach); err == nil {
		toAttach := filepath.Join(e.root, filepath.FromSlash(mdfs.AttachmentsDir(toRel)))
		if err := os.Rename(fromAttach, toAttach); err != nil {
			return err
		}
	}
	return nil
}

// updateLinks re-extracts edges from markdown and replaces the stored set.
// Internal targets resolve through the path index relative to the page file.
func (e *Engine) updateLinks(ctx context.Context, pageID, relPath, markdown string) error {
	extracted := links.Extract(markdown)
	edges := make([]store.Link, 0, len(extracted))
	baseDir := path.Dir(relPath)

	for _, link := range extracted {
		edge := store.Link{
			TargetPath: link.Target,
			Type:       string(link.Type),
			Text:       link.Text,
			Line:       link.Line,
		}
		if link.Type == links.TypeInternal {
			resolved := path.Clean(path.Join(baseDir, link.Target))
			if targetID, ok := e.paths.PageAt(resolved); ok {
				edge.TargetPageID = targetID
			} else if _, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(resolved))); err != nil {
				edge.Broken = true
			}
		}
		edges = append(edges, edge)
	}

	if err := e.store.SetPageLinks(ctx, pageID, edges); err != nil {
		return fmt.Errorf("persist links of %s: %w", pageID, err)
	}
	return nil
}

// syncPageMetadata refreshes labels and contributors. Failures here degrade
// the audit data but never fail the pull.
func (e *Engine) syncPageMetadata(ctx context.Context, page confluence.Page) {
	if labels, err := e.remote.GetLabels(ctx, page.ID); err == nil {
		if err := e.store.SetPageLabels(ctx, page.ID, labels); err != nil {
			e.logger.Warn("persisting labels failed", "page", page.ID, "error", err)
		}
	} else {
		e.logger.Debug("listing labels failed", "page", page.ID, "error", err)
	}

	versions, err := e.remote.ListVersions(ctx, page.ID)
	if err != nil {
		e.logger.Debug("listing versions failed", "page", page.ID, "error", err)
		return
	}

	type tally struct {
		count int
		last  time.Time
	}
	byAccount := map[string]*tally{}
	for _, version := range versions {
		if version.By == "" {
			continue
		}
		entry := byAccount[version.By]
		if entry == nil {
			entry = &tally{}
			byAccount[version.By] = entry
		}
		entry.count++
		if version.When.After(entry.last) {
			entry.last = version.When
		}
	}

	contributors := make([]store.Contributor, 0, len(byAccount))
	for account, entry := range byAccount {
		contributors = append(contributors, store.Contributor{
			AccountID:         account,
			ContributionCount: entry.count,
			LastContributedAt: entry.last,
		})
		// Seed the user cache; activity status stays unknown until a bulk
		// lookup verifies it.
		if _, err := e.store.GetUser(ctx, account); errors.Is(err, store.ErrNotFound) {
			if err := e.store.UpsertUser(ctx, store.User{AccountID: account}); err != nil {
				e.logger.Warn("seeding user failed", "account", account, "error", err)
			}
		}
	}
	if err := e.store.SetPageContributors(ctx, page.ID, contributors); err != nil {
		e.logger.Warn("persisting contributors failed", "page", page.ID, "error", err)
	}
}

// pageRecord maps remote metadata onto a store record, preserving hash and
// sync fields for the caller to fill.
func pageRecord(page confluence.Page, relPath string) store.Page {
	return store.Page{
		ID:           page.ID,
		Title:        page.Title,
		SpaceKey:     page.SpaceKey,
		Status:       page.Status,
		ParentID:     page.ParentID,
		Ancestors:    page.AncestorIDs(),
		Restricted:   page.Restricted,
		Version:      page.Version,
		VersionCount: page.Version,
		CreatedBy:    page.CreatedBy,
		CreatedAt:    page.CreatedAt,
		ModifiedBy:   page.ModifiedBy,
		LastModified: page.LastModified,
		RelPath:      relPath,
	}
}
