// Package transport defines the wire transport collaborator: an
// arbitrary duplex byte stream between host and device. The real
// serial/USB driver is out of scope for the core; this package only
// carries the interface plus an in-memory loopback double for tests
// and local examples.
package transport

import (
	"context"
	"log/slog"
)

// Duplex is the narrow byte-stream contract the session task writes
// encoded frames to. Inbound raw fragments reach the session through a
// FragmentQueue instead.
type Duplex interface {
	// Write sends one already-framed buffer. Fragmentation below this
	// boundary is the driver's business, not the session engine's.
	Write(frame []byte) error
	Close() error
}

// FragmentQueue is a single-producer, single-consumer bounded queue:
// the transport driver's receive callback is the producer, the
// session task is the sole consumer. Overflow drops the incoming
// fragment with a logged warning rather than applying backpressure,
// since the wire link has no flow-control signal.
type FragmentQueue struct {
	ch     chan []byte
	logger *slog.Logger
}

// NewFragmentQueue allocates a queue with the given capacity.
func NewFragmentQueue(capacity int, logger *slog.Logger) *FragmentQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &FragmentQueue{
		ch:     make(chan []byte, capacity),
		logger: logger.With("component", "fragment_queue"),
	}
}

// Push is called by the transport driver's receive callback. It never
// blocks: a full queue drops the fragment.
func (q *FragmentQueue) Push(fragment []byte) {
	select {
	case q.ch <- fragment:
	default:
		q.logger.Warn("dropped inbound fragment, queue full", "len", len(fragment))
	}
}

// Dequeue blocks until a fragment is available, the queue is closed,
// or ctx is done. The session task's own model has no timeout here;
// ctx exists only so process shutdown can unblock it.
func (q *FragmentQueue) Dequeue(ctx context.Context) (fragment []byte, ok bool) {
	select {
	case fragment, ok = <-q.ch:
		return fragment, ok
	case <-ctx.Done():
		return nil, false
	}
}

// Close signals no further fragments will be pushed; a blocked
// Dequeue returns.
func (q *FragmentQueue) Close() {
	close(q.ch)
}
