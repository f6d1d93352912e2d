package engine

import (
	"context"
	"sync"

	"github.com/roach88/worldpurpose/internal/ir"
)

// request is a call waiting for the Run loop.
type request struct {
	ctx   context.Context
	call  ir.Call
	reply chan response // buffered, size 1
}

type response struct {
	receipt ir.Receipt
	err     error
}

// requestQueue is a thread-safe FIFO queue of submitted calls.
//
// The queue is unbounded so Submit never blocks on a slow Run loop. It uses
// a channel for signaling so the Run loop can wait on it alongside ctx.Done().
type requestQueue struct {
	mu       sync.Mutex
	requests []request
	closed   bool
	signal   chan struct{} // Signals request availability (buffered, size 1)

	// depth, when set, is told the queue length after every change.
	depth func(int)
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.requests = append(q.requests, r)
	q.reportDepth()

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front request without blocking.
// Returns (request{}, false) if the queue is empty.
func (q *requestQueue) TryDequeue() (request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return request{}, false
	}

	r := q.requests[0]

	// Clear the slot so the backing array does not pin the request's ctx.
	q.requests[0] = request{}

	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	q.reportDepth()

	return r, true
}

// reportDepth must be called with q.mu held so reports arrive in order.
func (q *requestQueue) reportDepth() {
	if q.depth != nil {
		q.depth(len(q.requests))
	}
}

// Wait returns a channel that signals when requests may be available.
// The channel is closed once the queue is closed.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Drained reports whether the queue is closed and empty.
func (q *requestQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.requests) == 0
}

// Close signals that no more requests will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
