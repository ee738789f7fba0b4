// Package sync implements the bidirectional reconciliation engine: it feeds
// remote (poller, webhook) and local (file watcher) change events through a
// per-page serialized queue into pull, push and merge operations.
package sync

import (
	"log/slog"
	"time"
)

// EventKind tags one entry of the engine's structured event stream. Every
// reconciliation step emits exactly one event.
type EventKind string

const (
	EventPull     EventKind = "pull"
	EventPush     EventKind = "push"
	EventConflict EventKind = "conflict"
	EventError    EventKind = "error"
	EventStatus   EventKind = "status"
)

// Event is one entry of the stream. Error events never stop the daemon.
type Event struct {
	Kind    EventKind
	PageID  string
	Path    string
	Message string
	Err     error
	Time    time.Time
}

// EventSink consumes the event stream. Sinks must be fast; the engine calls
// them synchronously from the reconciliation worker.
type EventSink func(Event)

// LogSink returns a sink that writes every event to logger.
func LogSink(logger *slog.Logger) EventSink {
	return func(ev Event) {
		attrs := []any{"kind", string(ev.Kind)}
		if ev.PageID != "" {
			attrs = append(attrs, "page", ev.PageID)
		}
		if ev.Path != "" {
			attrs = append(attrs, "path", ev.Path)
		}
		if ev.Err != nil {
			attrs = append(attrs, "error", ev.Err)
		}
		switch ev.Kind {
		case EventError:
			logger.Error(ev.Message, attrs...)
		case EventConflict:
			logger.Warn(ev.Message, attrs...)
		default:
			logger.Info(ev.Message, attrs...)
		}
	}
}
