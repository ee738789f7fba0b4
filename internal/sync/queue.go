package sync

import (
	"context"
	"sync"
)

// RequestKind selects the reconciliation operation for a queued request.
type RequestKind string

const (
	// RequestPull re-fetches a remote page into the working tree.
	RequestPull RequestKind = "pull"
	// RequestPush uploads a local file's changes.
	RequestPush RequestKind = "push"
	// RequestDelete surfaces a remote deletion; local files are kept.
	RequestDelete RequestKind = "delete"
)

// Request is one unit of reconciliation work. PageID keys remote-origin
// requests; Path keys local-origin ones.
type Request struct {
	Kind   RequestKind
	PageID string
	Path   string
}

// key returns the coalescing key: operations for one page must serialize
// whichever side they originate from.
func (r Request) key() string {
	if r.PageID != "" {
		return "page:" + r.PageID
	}
	return "path:" + r.Path
}

// Queue is a keyed coalescing work queue. A later request replaces a pending
// one with the same key while keeping its queue position; the single consumer
// gives per-page serialization for free.
type Queue struct {
	mu      sync.Mutex
	pending map[string]Request
	order   []string
	ready   chan struct{}
	done    chan struct{}
	closed  bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		pending: map[string]Request{},
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Push enqueues a request, coalescing with any pending request for the same
// key. Pushing to a closed queue is a no-op.
func (q *Queue) Push(req Request) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if _, exists := q.pending[req.key()]; !exists {
		q.order = append(q.order, req.key())
	}
	q.pending[req.key()] = req
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Pop blocks until a request is available, the queue closes, or ctx is
// cancelled. The second return is false once no more requests will arrive.
func (q *Queue) Pop(ctx context.Context) (Request, bool) {
	for {
		q.mu.Lock()
		if len(q.order) > 0 {
			key := q.order[0]
			q.order = q.order[1:]
			req := q.pending[key]
			delete(q.pending, key)
			q.mu.Unlock()
			return req, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Request{}, false
		}

		select {
		case <-ctx.Done():
			return Request{}, false
		case <-q.done:
			// Re-check: close may race with a final push.
		case <-q.ready:
		}
	}
}

// Len returns the number of pending requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// Close stops the queue; pending requests remain poppable until drained.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()
}
