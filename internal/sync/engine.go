package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rgonek/confluence-mirror/internal/config"
	"github.com/rgonek/confluence-mirror/internal/confluence"
	"github.com/rgonek/confluence-mirror/internal/hashutil"
	"github.com/rgonek/confluence-mirror/internal/mdfs"
	"github.com/rgonek/confluence-mirror/internal/store"
)

// initialPullConcurrency bounds the fan-out of the startup catch-up pull.
// Distinct pages may sync in parallel; per-page ordering is trivially upheld
// because each page appears once.
const initialPullConcurrency = 4

// userRefreshInterval paces the daemon's bulk user-activity lookups.
const userRefreshInterval = time.Hour

const (
	// statusRemoteDeleted marks a page whose remote side was deleted; the
	// local copy is kept.
	statusRemoteDeleted = "remote-deleted"
	// statusRemoteInaccessible marks a page the remote no longer serves.
	statusRemoteInaccessible = "remote-inaccessible"
)

// Engine owns the reconciliation pipeline for one workspace.
type Engine struct {
	root   string
	ws     mdfs.Workspace
	cfg    config.Workspace
	remote confluence.Service
	store  *store.Store
	base   *store.BaseCache
	paths  *mdfs.PathIndex
	ignore *mdfs.IgnoreMatcher
	queue  *Queue
	events EventSink
	logger *slog.Logger

	homeID string
}

// EngineOptions wires the engine's collaborators.
type EngineOptions struct {
	Remote confluence.Service
	Store  *store.Store
	Base   *store.BaseCache
	Events EventSink
	Logger *slog.Logger
}

// NewEngine builds an engine for the workspace rooted at root. The state
// directory must already exist (via Workspace.Init or the init command).
func NewEngine(root string, cfg config.Workspace, opts EngineOptions) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := opts.Events
	if events == nil {
		events = LogSink(logger)
	}

	ws := mdfs.Workspace{Root: root}
	ignoreMatcher, err := mdfs.LoadIgnoreMatcher(root)
	if err != nil {
		return nil, fmt.Errorf("load ignore patterns: %w", err)
	}
	paths, err := ws.LoadPathIndex()
	if err != nil {
		return nil, fmt.Errorf("load path index: %w", err)
	}

	return &Engine{
		root:   root,
		ws:     ws,
		cfg:    cfg,
		remote: opts.Remote,
		store:  opts.Store,
		base:   opts.Base,
		paths:  paths,
		ignore: ignoreMatcher,
		queue:  NewQueue(),
		events: events,
		logger: logger,
	}, nil
}

func (e *Engine) emit(kind EventKind, pageID, path, message string, err error) {
	e.events(Event{Kind: kind, PageID: pageID, Path: path, Message: message, Err: err, Time: time.Now()})
}

// Run starts the daemon: lockfile, initial sync, remote sources, watcher and
// the reconciliation worker. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	lock, err := mdfs.AcquireLock(e.ws.StateDir())
	if err != nil {
		return err
	}
	defer lock.Release()

	if err := e.InitialSync(ctx); err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}

	poller := NewPoller(e.cfg.Interval(), e.knownVersions, e.remoteVersions, e.handleRemote, e.logger)

	watcher, err := NewWatcher(e.root, e.ignore, defaultDebounce, e.handleLocal, e.logger)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return poller.Run(gctx) })
	group.Go(func() error { return watcher.Run(gctx) })

	if e.cfg.WebhookPort > 0 {
		webhook := NewWebhookServer(e.cfg.WebhookPort, e.acceptWebhook, e.handleRemote, e.logger)
		group.Go(webhook.Start)
		group.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return webhook.Shutdown(shutdownCtx)
		})
	}

	group.Go(func() error {
		ticker := time.NewTicker(userRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := e.RefreshUsers(gctx); err != nil {
					e.logger.Warn("user refresh failed", "error", err)
				}
			}
		}
	})

	group.Go(func() error {
		<-gctx.Done()
		e.queue.Close()
		return nil
	})
	group.Go(func() error {
		e.work(gctx)
		return nil
	})

	e.emit(EventStatus, "", "", "daemon running", nil)
	return group.Wait()
}

// work drains the queue; it is the single reconciliation consumer.
func (e *Engine) work(ctx context.Context) {
	for {
		req, ok := e.queue.Pop(ctx)
		if !ok {
			return
		}
		e.process(ctx, req)
	}
}

func (e *Engine) process(ctx context.Context, req Request) {
	switch req.Kind {
	case RequestPull:
		if err := e.Pull(ctx, req.PageID); err != nil {
			e.emit(EventError, req.PageID, "", "pull failed", err)
		}
	case RequestPush:
		if err := e.Push(ctx, req.Path); err != nil {
			e.emit(EventError, "", req.Path, "push failed", err)
		}
	case RequestDelete:
		// Remote deletions are surfaced, never propagated to local files.
		// Marking the record keeps the poller from re-announcing it.
		path, _ := e.paths.PathFor(req.PageID)
		if known, err := e.store.GetPage(ctx, req.PageID); err == nil {
			known.Status = statusRemoteDeleted
			if err := e.store.UpsertPage(ctx, known); err != nil {
				e.emit(EventError, req.PageID, path, "recording remote deletion", err)
				return
			}
		}
		e.emit(EventStatus, req.PageID, path, "remote page deleted; local copy kept", nil)
	}
}

// handleRemote funnels poller and webhook events into the queue.
func (e *Engine) handleRemote(ev RemoteEvent) {
	switch ev.Type {
	case RemoteCreated, RemoteChanged:
		e.queue.Push(Request{Kind: RequestPull, PageID: ev.PageID})
	case RemoteDeleted:
		e.queue.Push(Request{Kind: RequestDelete, PageID: ev.PageID})
	}
}

// handleLocal receives debounced watcher events. The hash pre-check drops
// editor touch-writes and the engine's own writes.
func (e *Engine) handleLocal(relPath string) {
	doc, err := mdfs.ReadDocument(filepath.Join(e.root, relPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		e.emit(EventError, "", relPath, "reading changed file", err)
		return
	}

	pageID := doc.Frontmatter.ID
	if pageID == "" {
		pageID, _ = e.paths.PageAt(relPath)
	}
	if pageID != "" {
		known, err := e.store.GetPage(context.Background(), pageID)
		if err == nil {
			localHash := hashutil.HashNormalized(doc.Body)
			if known.LocalHash == localHash {
				return
			}
			// Record the divergence so status reporting is accurate even
			// before the push lands.
			known.LocalHash = localHash
			known.SyncState = store.DeriveState(localHash, known.BaseHash, known.RemoteHash)
			if err := e.store.UpsertPage(context.Background(), known); err != nil {
				e.logger.Warn("recording local edit failed", "page", pageID, "error", err)
			}
		}
	}
	e.queue.Push(Request{Kind: RequestPush, PageID: pageID, Path: relPath})
}

// acceptWebhook filters webhook payloads against the configured scope.
func (e *Engine) acceptWebhook(pageID, spaceKey string) bool {
	switch e.cfg.ScopeKind {
	case config.ScopePage, config.ScopeAncestor:
		if pageID == e.cfg.ScopeValue {
			return true
		}
		// Descendants of the scope root are in scope when already tracked.
		_, known := e.paths.PathFor(pageID)
		return known
	case config.ScopeSpace:
		return spaceKey == "" || spaceKey == e.cfg.SpaceKey
	default:
		return false
	}
}

// InitialSync brings the workspace up to date with the remote scope: state
// directory, home designation, local file binding, then a bounded-parallel
// catch-up pull of every stale or missing page.
func (e *Engine) InitialSync(ctx context.Context) error {
	if err := e.ws.Init(); err != nil {
		return err
	}
	if err := e.store.SetMeta(ctx, store.MetaHashAlgorithm, hashutil.Algorithm); err != nil {
		return err
	}

	if e.cfg.ScopeKind == config.ScopeSpace {
		if err := e.designateHome(ctx); err != nil {
			return err
		}
	}

	pages, err := e.listScope(ctx)
	if err != nil {
		return err
	}

	if err := e.bindLocalFiles(ctx); err != nil {
		return err
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(initialPullConcurrency)
	for _, page := range pages {
		if page.ID == e.homeID {
			continue
		}
		known, err := e.store.GetPage(ctx, page.ID)
		if err == nil && known.Version >= page.Version {
			continue
		}
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			// Track the page immediately; the version stays zero until the
			// first successful pull so a failure retries on the next poll.
			skeleton := pageRecord(page, "")
			skeleton.Version = 0
			skeleton.SyncState = store.StateUnsynced
			if err := e.store.UpsertPage(ctx, skeleton); err != nil {
				return err
			}
		}

		pageID := page.ID
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		group.Go(func() error {
			defer sem.Release(1)
			if err := e.Pull(gctx, pageID); err != nil {
				e.emit(EventError, pageID, "", "initial pull failed", err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if err := e.ws.SavePathIndex(e.paths); err != nil {
		return err
	}
	if err := e.store.SetMeta(ctx, store.MetaLastPollAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	if err := e.RefreshUsers(ctx); err != nil {
		e.logger.Warn("user refresh failed", "error", err)
	}
	e.emit(EventStatus, "", "", "initial sync complete", nil)
	return nil
}

// designateHome finds the space root page whose children collapse to the
// working-directory root.
func (e *Engine) designateHome(ctx context.Context) error {
	space, err := e.remote.GetSpace(ctx, e.cfg.SpaceKey)
	if err != nil {
		return fmt.Errorf("resolve space %s: %w", e.cfg.SpaceKey, err)
	}
	e.homeID = space.HomepageID

	if e.homeID == "" {
		pages, err := e.remote.ListAllPages(ctx, confluence.PageListOptions{SpaceKey: e.cfg.SpaceKey})
		if err != nil {
			return err
		}
		for _, page := range pages {
			if page.ParentID == "" && len(page.Ancestors) == 0 {
				e.homeID = page.ID
				break
			}
		}
	}
	if e.homeID != "" {
		return e.store.SetMeta(ctx, store.MetaHomePageID, e.homeID)
	}
	return nil
}

// listScope returns every remote page the workspace mirrors.
func (e *Engine) listScope(ctx context.Context) ([]confluence.Page, error) {
	return ListScopePages(ctx, e.remote, e.cfg)
}

// ListScopePages resolves a workspace scope to its remote page set. The
// audit's remote-only comparison shares this with the engine.
func ListScopePages(ctx context.Context, remote confluence.Service, cfg config.Workspace) ([]confluence.Page, error) {
	switch cfg.ScopeKind {
	case config.ScopePage:
		page, err := remote.GetPage(ctx, cfg.ScopeValue)
		if err != nil {
			return nil, err
		}
		return []confluence.Page{page}, nil
	case config.ScopeAncestor:
		root, err := remote.GetPage(ctx, cfg.ScopeValue)
		if err != nil {
			return nil, err
		}
		descendants, err := remote.ListDescendants(ctx, cfg.ScopeValue)
		if err != nil {
			return nil, err
		}
		return append([]confluence.Page{root}, descendants...), nil
	case config.ScopeSpace:
		return remote.ListAllPages(ctx, confluence.PageListOptions{SpaceKey: cfg.SpaceKey})
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidScope, cfg.ScopeKind)
	}
}

// remoteVersions is the poller's remote-side VersionLister.
func (e *Engine) remoteVersions(ctx context.Context) (map[string]int, error) {
	pages, err := e.listScope(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(pages))
	for _, page := range pages {
		out[page.ID] = page.Version
	}
	return out, nil
}

// knownVersions is the poller's local-side VersionLister: the store's view
// of each page, which only advances when a pull succeeds. Pages whose remote
// side is already known to be gone are excluded so their deletion is not
// re-announced every tick.
func (e *Engine) knownVersions(ctx context.Context) (map[string]int, error) {
	pages, err := e.store.ListPages(ctx, store.ListFilter{})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(pages))
	for _, page := range pages {
		if page.Status == statusRemoteDeleted || page.Status == statusRemoteInaccessible {
			continue
		}
		out[page.ID] = page.Version
	}
	return out, nil
}

// bindLocalFiles walks the working tree and binds markdown files to page ids
// via the persisted index or their frontmatter.
func (e *Engine) bindLocalFiles(ctx context.Context) error {
	return filepath.WalkDir(e.root, func(path string, d fs.DirEntry, err error) error {
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
		if _, bound := e.paths.PageAt(rel); bound {
			return nil
		}

		fm, err := mdfs.ReadFrontmatterHead(path)
		if err != nil || fm.ID == "" {
			e.emit(EventStatus, "", rel, "untracked local file", nil)
			return nil
		}
		if err := e.paths.Bind(fm.ID, rel); err != nil {
			e.emit(EventError, fm.ID, rel, "binding local file", err)
		}
		return nil
	})
}

// locationFor maps a remote page into the workspace hierarchy, skipping the
// designated home page in the ancestor chain.
func (e *Engine) locationFor(ctx context.Context, page confluence.Page) mdfs.PageLocation {
	titles := make([]string, 0, len(page.Ancestors))
	for _, ancestor := range page.Ancestors {
		if ancestor.ID == e.homeID {
			continue
		}
		title := ancestor.Title
		if title == "" {
			if known, err := e.store.GetPage(ctx, ancestor.ID); err == nil {
				title = known.Title
			}
		}
		titles = append(titles, title)
	}

	children, err := e.store.CountChildren(ctx, page.ID)
	if err != nil {
		children = 0
	}
	return mdfs.PageLocation{
		AncestorTitles: titles,
		Title:          page.Title,
		HasChildren:    children > 0,
	}
}

// Queue exposes the work queue for one-shot commands and tests.
func (e *Engine) Queue() *Queue {
	return e.queue
}
