package sync

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/converter"
	"github.com/rgonek/confluence-mirror/internal/hashutil"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/merge"
	"github.com/rgonek/confluence-mirror/internal/store"
)

// Merge reconciles a page that diverged on both sides: three-way merge
// against the stored base, then either push the merged body or apply the
// configured conflict policy.
func (e *Engine) Merge(ctx context.Context, pageID string, doc mdfs.Document, known store.Page, remote confluence.Page) error {
	relPath := known.RelPath
	remoteMarkdown, err := converter.Forward(remote.BodyStorage, converter.ForwardOptions{
		AttachmentsDir: path.Base(mdfs.AttachmentsDir(relPath)),
	})
	if err != nil {
		return fmt.Errorf("convert remote page %s: %w", pageID, err)
	}

	baseContent, err := e.base.Read(pageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		// No common ancestor: unmergeable, do not guess.
		if err := e.setSyncState(ctx, pageID, store.StateConflict); err != nil {
			return err
		}
		e.emit(EventConflict, pageID, relPath, "conflict: no base content for merge", nil)
		return nil
	}

	result := merge.Merge(baseContent, doc.Body, remoteMarkdown)
	if result.Success {
		merged := doc
		merged.Body = result.Content
		if err := e.upload(ctx, pageID, relPath, merged, remote); err != nil {
			return err
		}
		e.emit(EventStatus, pageID, relPath, "changes merged automatically", nil)
		return nil
	}

	switch e.cfg.Policy() {
	case config.PolicyLocal:
		// Force-push the local body over the newer remote version.
		return e.upload(ctx, pageID, relPath, doc, remote)
	case config.PolicyRemote:
		return e.forcePullRemote(ctx, pageID, relPath, doc, remote, remoteMarkdown)
	default:
		return e.writeConflictMarkers(ctx, pageID, relPath, doc, result)
	}
}

// writeConflictMarkers leaves the marker-laden body on disk for the user; no
// push happens until they resolve and save.
func (e *Engine) writeConflictMarkers(ctx context.Context, pageID, relPath string, doc mdfs.Document, result merge.Result) error {
	conflicted := doc
	conflicted.Body = result.Content
	if err := mdfs.WriteDocument(filepath.Join(e.root, filepath.FromSlash(relPath)), conflicted); err != nil {
		return fmt.Errorf("write conflict file %s: %w", relPath, err)
	}

	known, err := e.store.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	known.RelPath = relPath
	known.LocalHash = hashutil.HashNormalized(result.Content)
	known.SyncState = store.StateConflict
	if err := e.store.UpsertPage(ctx, known); err != nil {
		return err
	}

	e.emit(EventConflict, pageID, relPath,
		fmt.Sprintf("conflict: %d region(s) need manual resolution", result.ConflictCount), nil)
	return nil
}

// forcePullRemote discards the local edit in favor of the remote body.
func (e *Engine) forcePullRemote(ctx context.Context, pageID, relPath string, doc mdfs.Document, remote confluence.Page, remoteMarkdown string) error {
	doc.Body = remoteMarkdown
	doc.Frontmatter.Title = remote.Title
	doc.Frontmatter.Version = remote.Version
	if err := mdfs.WriteDocument(filepath.Join(e.root, filepath.FromSlash(relPath)), doc); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}

	hash := hashutil.HashNormalized(remoteMarkdown)
	if err := e.base.Write(pageID, remoteMarkdown); err != nil {
		return err
	}

	record := pageRecord(remote, relPath)
	record.LocalHash = hash
	record.BaseHash = hash
	record.RemoteHash = hash
	record.SyncState = store.StateSynced
	record.LastSyncedAt = time.Now()
	if err := e.store.UpsertPage(ctx, record); err != nil {
		return err
	}
	if err := e.updateLinks(ctx, pageID, relPath, remoteMarkdown); err != nil {
		return err
	}

	e.emit(EventPull, pageID, relPath, "conflict resolved by remote policy", nil)
	return nil
}
