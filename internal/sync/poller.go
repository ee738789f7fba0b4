package sync

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// RemoteEventType classifies a remote change observed by the poller or the
// webhook receiver.
type RemoteEventType string

const (
	RemoteCreated RemoteEventType = "created"
	RemoteChanged RemoteEventType = "changed"
	RemoteDeleted RemoteEventType = "deleted"
)

// RemoteEvent is the uniform event both remote sources emit.
type RemoteEvent struct {
	PageID string
	Type   RemoteEventType
}

// VersionLister returns a page set as id -> version.
type VersionLister func(ctx context.Context) (map[string]int, error)

// Poller periodically diffs the remote page set against the locally known
// versions and emits created/changed/deleted events. The local side only
// advances when reconciliation succeeds, so a failed pull is re-emitted on
// the next tick instead of being forgotten. A tick that fires while the
// previous tick's work is still running is skipped, not queued.
type Poller struct {
	known    VersionLister
	list     VersionLister
	interval time.Duration
	emit     func(RemoteEvent)
	logger   *slog.Logger

	busy atomic.Bool
}

// NewPoller returns a poller diffing list (remote) against known (local).
func NewPoller(interval time.Duration, known, list VersionLister, emit func(RemoteEvent), logger *slog.Logger) *Poller {
	return &Poller{
		known:    known,
		list:     list,
		interval: interval,
		emit:     emit,
		logger:   logger,
	}
}

// Run ticks until ctx is cancelled. Tick failures are logged and retried on
// the next interval; they never stop the poller.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !p.busy.CompareAndSwap(false, true) {
				p.logger.Debug("poll tick skipped, previous tick still running")
				continue
			}
			go func() {
				defer p.busy.Store(false)
				p.Tick(ctx)
			}()
		}
	}
}

// Tick performs one poll cycle: list both sides, diff, emit.
func (p *Poller) Tick(ctx context.Context) {
	remote, err := p.list(ctx)
	if err != nil {
		p.logger.Warn("poll tick failed", "error", err)
		return
	}
	local, err := p.known(ctx)
	if err != nil {
		p.logger.Warn("reading local versions failed", "error", err)
		return
	}

	for id, version := range remote {
		localVersion, tracked := local[id]
		switch {
		case !tracked:
			p.emit(RemoteEvent{PageID: id, Type: RemoteCreated})
		case version != localVersion:
			p.emit(RemoteEvent{PageID: id, Type: RemoteChanged})
		}
	}
	for id := range local {
		if _, still := remote[id]; !still {
			p.emit(RemoteEvent{PageID: id, Type: RemoteDeleted})
		}
	}
}
