// Package queue implements the blocking FIFO used for cross-goroutine
// handoff between a producer and a consumer worker.
//
// Design:
//   - Push() never blocks and wakes exactly one waiting consumer
//   - Pop() blocks efficiently (sync.Cond, no busy-wait)
//   - Invalidate() is the one-shot shutdown transition: waiters wake,
//     already-queued items still drain, then Pop returns false forever
//
// The drain-on-shutdown rule is deliberate: stopping a worker must not
// silently discard work that was already accepted.
package queue

import "sync"

// Queue is a thread-safe blocking FIFO of T.
//
// Thread-safety: all methods safe for concurrent use. Typically one
// consumer goroutine and one or more producers.
type Queue[T any] struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []T
	valid bool
}

// New creates an empty, valid queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{valid: true}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends an item and wakes one waiting consumer.
//
// Items pushed after Invalidate are still accepted and drained; producers
// racing shutdown do not lose work. Never blocks.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.cond.Signal()
}

// Pop blocks until an item is available or the queue is invalidated.
//
// Returns false only when the queue is invalidated AND empty. While
// invalidated but non-empty, queued items keep draining with ok=true.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && q.valid {
		q.cond.Wait()
	}

	if len(q.items) == 0 {
		// Invalidated and fully drained.
		var zero T
		return zero, false
	}

	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// TryPop pops without blocking. Returns false if the queue is empty.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Invalidate transitions the queue to shutdown mode and wakes all waiters.
//
// One-shot: subsequent calls are no-ops. Consumers observe ok=true until
// the backlog drains, then ok=false forever.
func (q *Queue[T]) Invalidate() {
	q.mu.Lock()
	q.valid = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue holds no items.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}
