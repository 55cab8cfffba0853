// Package scenebus fans perception results out to in-process consumers
// (reasoning, the emitter, diagnostics) without ever blocking the producer.
//
// Delivery policy is drop, never queue: a consumer that falls behind loses
// scenes, because acting on the latest scene beats working through stale
// ones. Two subscription flavors cover the consumers we have:
//
//   - Subscribe: a plain buffered channel; full channel drops the new scene.
//   - SubscribeLatest: a one-deep mailbox; a new scene replaces the unread
//     one, so the consumer always wakes to the freshest scene.
package scenebus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/wayline-dev/wayline-wearable/internal/types"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("scenebus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with an unknown id.
	ErrSubscriberNotFound = errors.New("scenebus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("scenebus: bus is closed")
)

// Stats is a snapshot of bus counters.
type Stats struct {
	TotalPublished uint64
	TotalSent      uint64
	TotalDropped   uint64
	Subscribers    map[string]SubscriberStats
}

// SubscriberStats tracks delivery counters for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

// DropRate returns the fraction of deliveries dropped, 0 when idle.
func (s Stats) DropRate() float64 {
	total := s.TotalSent + s.TotalDropped
	if total == 0 {
		return 0
	}
	return float64(s.TotalDropped) / float64(total)
}

type subscriberStats struct {
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Mailbox is a one-deep latest-wins subscription. Receive blocks until a
// scene arrives or the bus closes.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	scene  *types.Scene
	closed bool
}

func newMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// put replaces the unread scene. Reports whether a scene was displaced.
func (m *Mailbox) put(s *types.Scene) (displaced bool) {
	m.mu.Lock()
	displaced = m.scene != nil
	m.scene = s
	m.mu.Unlock()
	m.cond.Signal()
	return displaced
}

// Receive blocks until the next scene. ok is false when the bus has closed
// and no unread scene remains.
func (m *Mailbox) Receive() (scene *types.Scene, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.scene == nil && !m.closed {
		m.cond.Wait()
	}
	if m.scene == nil {
		return nil, false
	}
	scene = m.scene
	m.scene = nil
	return scene, true
}

// TryReceive returns the unread scene without blocking.
func (m *Mailbox) TryReceive() (scene *types.Scene, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scene == nil {
		return nil, false
	}
	scene = m.scene
	m.scene = nil
	return scene, true
}

func (m *Mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cond.Broadcast()
}

// Bus distributes scenes to subscribers with a drop policy.
type Bus struct {
	mu        sync.RWMutex
	channels  map[string]chan<- *types.Scene
	mailboxes map[string]*Mailbox
	stats     map[string]*subscriberStats
	closed    bool

	totalPublished atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		channels:  make(map[string]chan<- *types.Scene),
		mailboxes: make(map[string]*Mailbox),
		stats:     make(map[string]*subscriberStats),
	}
}

// Subscribe registers a channel to receive scenes. When the channel is full
// at publish time the new scene is dropped for this subscriber.
func (b *Bus) Subscribe(id string, ch chan<- *types.Scene) error {
	if ch == nil {
		return errors.New("scenebus: subscriber channel cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if b.taken(id) {
		return ErrSubscriberExists
	}

	b.channels[id] = ch
	b.stats[id] = &subscriberStats{}
	return nil
}

// SubscribeLatest registers a latest-wins mailbox subscription: an unread
// scene is replaced by the next publish instead of delaying it.
func (b *Bus) SubscribeLatest(id string) (*Mailbox, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if b.taken(id) {
		return nil, ErrSubscriberExists
	}

	m := newMailbox()
	b.mailboxes[id] = m
	b.stats[id] = &subscriberStats{}
	return m, nil
}

// Unsubscribe removes a subscriber by id. Mailbox subscribers are woken with
// ok=false on their next Receive.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if !b.taken(id) {
		return ErrSubscriberNotFound
	}

	if m, ok := b.mailboxes[id]; ok {
		m.close()
	}
	delete(b.channels, id)
	delete(b.mailboxes, id)
	delete(b.stats, id)
	return nil
}

// Publish sends the scene to every subscriber without blocking. Publishing
// on a closed bus is a no-op; the shutdown race between the perception
// worker and Close is benign by construction.
func (b *Bus) Publish(scene *types.Scene) {
	b.totalPublished.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for id, ch := range b.channels {
		select {
		case ch <- scene:
			b.stats[id].sent.Add(1)
		default:
			b.stats[id].dropped.Add(1)
		}
	}
	for id, m := range b.mailboxes {
		if m.put(scene) {
			b.stats[id].dropped.Add(1)
		}
		b.stats[id].sent.Add(1)
	}
}

// Stats returns a snapshot of the counters. Concurrent publishes may advance
// them after the call returns.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats),
	}
	for id, stats := range b.stats {
		sent := stats.sent.Load()
		dropped := stats.dropped.Load()
		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}
	return result
}

// Close stops distribution and wakes every mailbox subscriber. Subscriber
// channels are not closed; their owners manage that. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, m := range b.mailboxes {
		m.close()
	}
	return nil
}

// taken reports whether id is claimed by either subscription kind.
// Callers hold b.mu.
func (b *Bus) taken(id string) bool {
	if _, ok := b.channels[id]; ok {
		return true
	}
	_, ok := b.mailboxes[id]
	return ok
}
