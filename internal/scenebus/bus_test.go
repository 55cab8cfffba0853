package scenebus

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/wayline-dev/wayline-wearable/internal/types"
)

func scene(id string) *types.Scene {
	return &types.Scene{TraceID: id}
}

func TestChannelSubscriberReceivesInOrder(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan *types.Scene, 4)
	if err := bus.Subscribe("worker", ch); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 3; i++ {
		bus.Publish(scene(fmt.Sprintf("s-%d", i)))
	}

	for i := 0; i < 3; i++ {
		got := <-ch
		want := fmt.Sprintf("s-%d", i)
		if got.TraceID != want {
			t.Fatalf("scene %d: got %s, want %s", i, got.TraceID, want)
		}
	}
}

// Scenario: a full channel drops the NEW scene and never blocks Publish.
// 1. Fill a 1-buffer subscriber.
// 2. Publish again; call must return immediately and count a drop.
// 3. The buffered scene is the old one.
func TestFullChannelDropsNew(t *testing.T) {
	bus := New()
	defer bus.Close()

	ch := make(chan *types.Scene, 1)
	if err := bus.Subscribe("slow", ch); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	bus.Publish(scene("old"))
	bus.Publish(scene("new"))

	stats := bus.Stats()
	sub := stats.Subscribers["slow"]
	if sub.Sent != 1 || sub.Dropped != 1 {
		t.Fatalf("stats: sent=%d dropped=%d, want 1/1", sub.Sent, sub.Dropped)
	}
	if got := <-ch; got.TraceID != "old" {
		t.Fatalf("buffered scene: got %s, want old", got.TraceID)
	}
}

// The mailbox keeps the LATEST scene: an unread scene is displaced, so a
// consumer that wakes late still sees the freshest state.
func TestMailboxLatestWins(t *testing.T) {
	bus := New()
	defer bus.Close()

	m, err := bus.SubscribeLatest("reasoner")
	if err != nil {
		t.Fatalf("SubscribeLatest: %v", err)
	}

	bus.Publish(scene("stale"))
	bus.Publish(scene("fresh"))

	got, ok := m.Receive()
	if !ok {
		t.Fatal("Receive: bus should be open")
	}
	if got.TraceID != "fresh" {
		t.Fatalf("mailbox scene: got %s, want fresh", got.TraceID)
	}
	if _, ok := m.TryReceive(); ok {
		t.Fatal("mailbox should be empty after receive")
	}

	stats := bus.Stats()
	sub := stats.Subscribers["reasoner"]
	if sub.Dropped != 1 {
		t.Fatalf("displaced scene not counted: dropped=%d", sub.Dropped)
	}
}

func TestCloseWakesMailboxReceivers(t *testing.T) {
	bus := New()
	m, err := bus.SubscribeLatest("reasoner")
	if err != nil {
		t.Fatalf("SubscribeLatest: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, ok := m.Receive(); ok {
			t.Error("Receive after close: got ok=true")
		}
	}()

	if err := bus.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	wg.Wait()

	// Closed bus: publish is a no-op, subscribe refuses.
	bus.Publish(scene("late"))
	if err := bus.Subscribe("x", make(chan *types.Scene, 1)); !errors.Is(err, ErrBusClosed) {
		t.Fatalf("Subscribe after close: got %v, want ErrBusClosed", err)
	}
}

func TestDuplicateSubscriberRejectedAcrossKinds(t *testing.T) {
	bus := New()
	defer bus.Close()

	if _, err := bus.SubscribeLatest("a"); err != nil {
		t.Fatalf("SubscribeLatest: %v", err)
	}
	if err := bus.Subscribe("a", make(chan *types.Scene, 1)); !errors.Is(err, ErrSubscriberExists) {
		t.Fatalf("duplicate id across kinds: got %v, want ErrSubscriberExists", err)
	}
	if err := bus.Unsubscribe("a"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := bus.Unsubscribe("a"); !errors.Is(err, ErrSubscriberNotFound) {
		t.Fatalf("second unsubscribe: got %v, want ErrSubscriberNotFound", err)
	}
}
