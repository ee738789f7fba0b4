package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/converter"
	"github.com/rgonek/confluence-mirror/internal/hashutil"
	"github.com/rgonek/confluence-mirror/internal/links"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/merge"
	"github.com/rgonek/confluence-mirror/internal/store"
)

// Push uploads a changed local file. Files carrying unresolved conflict
// markers are rejected; a remote version ahead of ours delegates to Merge.
func (e *Engine) Push(ctx context.Context, relPath string) error {
	doc, err := mdfs.ReadDocument(filepath.Join(e.root, filepath.FromSlash(relPath)))
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}

	pageID := doc.Frontmatter.ID
	if pageID == "" {
		pageID, _ = e.paths.PageAt(relPath)
	}
	if pageID == "" {
		return e.createRemote(ctx, relPath, doc)
	}

	if merge.HasConflictMarkers(doc.Body) {
		if err := e.setSyncState(ctx, pageID, store.StateConflict); err != nil {
			return err
		}
		e.emit(EventConflict, pageID, relPath, "push rejected: unresolved conflict markers", nil)
		return nil
	}

	known, err := e.store.GetPage(ctx, pageID)
	if err != nil {
		return fmt.Errorf("state of page %s: %w", pageID, err)
	}
	if issues := mdfs.ValidateImmutableFrontmatter(mdfs.Frontmatter{ID: known.ID, Space: known.SpaceKey},
		doc.Frontmatter); !issues.IsValid() {
		e.emit(EventError, pageID, relPath, "push rejected: "+issues.Issues[0].Message, nil)
		return nil
	}

	remote, err := e.remote.GetPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, confluence.ErrNotFound) {
			return e.markInaccessible(ctx, pageID, err)
		}
		return fmt.Errorf("fetch page %s: %w", pageID, err)
	}

	if remote.Version > known.Version {
		return e.Merge(ctx, pageID, doc, known, remote)
	}

	return e.upload(ctx, pageID, relPath, doc, remote)
}

// PushAll walks the workspace and pushes every markdown file whose body
// differs from the last recorded sync. It returns the number of files pushed.
func (e *Engine) PushAll(ctx context.Context) (int, error) {
	var pushed int
	err := filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(e.root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && e.ignore.ShouldIgnore(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(rel, ".md") || e.ignore.ShouldIgnore(rel) {
			return nil
		}

		doc, err := mdfs.ReadDocument(path)
		if err != nil {
			e.emit(EventError, "", rel, "reading local file", err)
			return nil
		}
		pageID := doc.Frontmatter.ID
		if pageID == "" {
			pageID, _ = e.paths.PageAt(rel)
		}
		if pageID != "" {
			known, err := e.store.GetPage(ctx, pageID)
			if err == nil {
				localHash := hashutil.HashNormalized(doc.Body)
				if known.LocalHash == localHash && known.SyncState == store.StateSynced {
					return nil
				}
				if known.LocalHash != localHash {
					known.LocalHash = localHash
					known.SyncState = store.DeriveState(localHash, known.BaseHash, known.RemoteHash)
					if err := e.store.UpsertPage(ctx, known); err != nil {
						return err
					}
				}
			}
		}

		if err := e.Push(ctx, rel); err != nil {
			return err
		}
		pushed++
		return nil
	})
	return pushed, err
}

// upload performs the unconditional write path: attachments, storage
// conversion, remote update with version+1, then base/hash/state alignment.
func (e *Engine) upload(ctx context.Context, pageID, relPath string, doc mdfs.Document, remote confluence.Page) error {
	e.uploadAttachments(ctx, pageID, relPath, doc.Body)

	storage, err := converter.Reverse(doc.Body)
	if err != nil {
		return fmt.Errorf("convert %s: %w", relPath, err)
	}

	title := doc.Frontmatter.Title
	if title == "" {
		title = remote.Title
	}
	updated, err := e.remote.UpdatePage(ctx, pageID, confluence.PageUpsertInput{
		SpaceKey:    remote.SpaceKey,
		ParentID:    remote.ParentID,
		Title:       title,
		Version:     remote.Version + 1,
		BodyStorage: storage,
	})
	if err != nil {
		return fmt.Errorf("update page %s: %w", pageID, err)
	}

	return e.recordPushed(ctx, pageID, relPath, doc, updated)
}

// recordPushed aligns disk, base and store after a successful remote write.
func (e *Engine) recordPushed(ctx context.Context, pageID, relPath string, doc mdfs.Document, remote confluence.Page) error {
	doc.Frontmatter.ID = pageID
	doc.Frontmatter.Version = remote.Version
	if doc.Frontmatter.Space == "" {
		doc.Frontmatter.Space = remote.SpaceKey
	}
	if err := mdfs.WriteDocument(filepath.Join(e.root, filepath.FromSlash(relPath)), doc); err != nil {
		return fmt.Errorf("rewrite %s: %w", relPath, err)
	}

	hash := hashutil.HashNormalized(doc.Body)
	if err := e.base.Write(pageID, doc.Body); err != nil {
		return fmt.Errorf("write base of %s: %w", pageID, err)
	}

	record := pageRecord(remote, relPath)
	if record.Title == "" {
		record.Title = doc.Frontmatter.Title
	}
	record.LocalHash = hash
	record.BaseHash = hash
	record.RemoteHash = hash
	record.SyncState = store.StateSynced
	record.LastSyncedAt = time.Now()
	if err := e.store.UpsertPage(ctx, record); err != nil {
		return fmt.Errorf("persist page %s: %w", pageID, err)
	}

	if err := e.updateLinks(ctx, pageID, relPath, doc.Body); err != nil {
		return err
	}
	e.emit(EventPush, pageID, relPath, fmt.Sprintf("pushed version %d", remote.Version), nil)
	return nil
}

// createRemote handles a local file with no bound page: with auto-create on,
// a new remote page is created under the scope parent and the id written
// back into the frontmatter.
func (e *Engine) createRemote(ctx context.Context, relPath string, doc mdfs.Document) error {
	if !e.cfg.AutoCreate {
		e.emit(EventStatus, "", relPath, "untracked file; auto-create disabled", nil)
		return nil
	}
	if issues := mdfs.ValidateFrontmatterSchema(doc.Frontmatter); !issues.IsValid() {
		e.emit(EventError, "", relPath, "create rejected: "+issues.Issues[0].Message, nil)
		return nil
	}

	parentID := e.createParent()
	storage, err := converter.Reverse(doc.Body)
	if err != nil {
		return fmt.Errorf("convert %s: %w", relPath, err)
	}

	created, err := e.remote.CreatePage(ctx, confluence.PageUpsertInput{
		SpaceKey:    e.cfg.SpaceKey,
		ParentID:    parentID,
		Title:       doc.Frontmatter.Title,
		BodyStorage: storage,
	})
	if err != nil {
		return fmt.Errorf("create page for %s: %w", relPath, err)
	}

	if err := e.paths.Bind(created.ID, relPath); err != nil {
		return err
	}
	if err := e.ws.SavePathIndex(e.paths); err != nil {
		return err
	}
	return e.recordPushed(ctx, created.ID, relPath, doc, created)
}

// createParent picks where auto-created pages land: the scope page itself,
// or the space home.
func (e *Engine) createParent() string {
	switch e.cfg.ScopeKind {
	case config.ScopePage, config.ScopeAncestor:
		return e.cfg.ScopeValue
	case config.ScopeSpace:
		return e.homeID
	default:
		return ""
	}
}

// uploadAttachments creates or replaces every attachment file referenced by
// the markdown. A failing file is logged and skipped; the page push still
// proceeds.
func (e *Engine) uploadAttachments(ctx context.Context, pageID, relPath, markdown string) {
	referenced := map[string]bool{}
	attachDir := mdfs.AttachmentsDir(relPath)
	for _, link := range links.Extract(markdown) {
		if link.Type != links.TypeAttachment {
			continue
		}
		referenced[strings.TrimPrefix(link.Target, filepath.ToSlash(filepath.Base(attachDir))+"/")] = true
	}
	if len(referenced) == 0 {
		return
	}

	existing := map[string]string{}
	if attachments, err := e.remote.ListAttachments(ctx, pageID); err == nil {
		for _, a := range attachments {
			existing[a.Filename] = a.ID
		}
	} else {
		e.logger.Warn("listing attachments failed", "page", pageID, "error", err)
	}

	for filename := range referenced {
		data, err := os.ReadFile(filepath.Join(e.root, filepath.FromSlash(attachDir), filename))
		if err != nil {
			e.logger.Warn("reading attachment failed", "page", pageID, "file", filename, "error", err)
			continue
		}
		input := confluence.AttachmentUploadInput{PageID: pageID, Filename: filename, Data: data}
		if id, ok := existing[filename]; ok {
			_, err = e.remote.UpdateAttachment(ctx, id, input)
		} else {
			_, err = e.remote.UploadAttachment(ctx, input)
		}
		if err != nil {
			e.logger.Warn("uploading attachment failed", "page", pageID, "file", filename, "error", err)
		}
	}
}

func (e *Engine) setSyncState(ctx context.Context, pageID string, state store.SyncState) error {
	known, err := e.store.GetPage(ctx, pageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	known.SyncState = state
	return e.store.UpsertPage(ctx, known)
}
