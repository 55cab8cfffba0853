package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/queue"
)

// --- Test 1: FIFO order between one producer and one consumer ---

func TestFIFOOrder(t *testing.T) {
	q := queue.New[int]()

	for i := 0; i < 100; i++ {
		q.Push(i)
	}

	for i := 0; i < 100; i++ {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() returned false on valid queue at item %d", i)
		}
		if item != i {
			t.Fatalf("Pop() order violated: got %d, want %d", item, i)
		}
	}
}

// --- Test 2: graceful drain on Invalidate ---

// TestInvalidateDrains validates the shutdown contract: items pushed before
// Invalidate all drain with ok=true, then Pop returns false forever.
//
// Scenario:
//  1. Push 5 items
//  2. Invalidate
//  3. Pop 5 times -> all ok=true, in order, nothing lost or duplicated
//  4. Pop again -> ok=false, immediately (no block)
func TestInvalidateDrains(t *testing.T) {
	q := queue.New[string]()

	want := []string{"a", "b", "c", "d", "e"}
	for _, s := range want {
		q.Push(s)
	}

	q.Invalidate()

	for i, w := range want {
		item, ok := q.Pop()
		if !ok {
			t.Fatalf("Pop() #%d returned false with %d items still queued", i, len(want)-i)
		}
		if item != w {
			t.Fatalf("Pop() #%d = %q, want %q", i, item, w)
		}
	}

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	select {
	case ok := <-done:
		if ok {
			t.Fatal("Pop() on drained invalidated queue returned true")
		}
	case <-time.After(time.Second):
		t.Fatal("Pop() blocked on drained invalidated queue")
	}
}

// --- Test 3: Invalidate wakes blocked consumers ---

func TestInvalidateWakesWaiters(t *testing.T) {
	q := queue.New[int]()

	const waiters = 4
	var wg sync.WaitGroup
	results := make(chan bool, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := q.Pop()
			results <- ok
		}()
	}

	// Give the goroutines time to block in Pop.
	time.Sleep(50 * time.Millisecond)
	q.Invalidate()

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("Invalidate() did not wake all blocked consumers")
	}

	for i := 0; i < waiters; i++ {
		if ok := <-results; ok {
			t.Error("blocked Pop() returned true after Invalidate on empty queue")
		}
	}
}

// --- Test 4: no item lost or duplicated under concurrent producers ---

func TestConcurrentProducersNoLoss(t *testing.T) {
	q := queue.New[int]()

	const producers = 8
	const perProducer = 250

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(p * perProducer)
	}

	wg.Wait()
	q.Invalidate()

	seen := make(map[int]bool, producers*perProducer)
	for {
		item, ok := q.Pop()
		if !ok {
			break
		}
		if seen[item] {
			t.Fatalf("item %d popped twice", item)
		}
		seen[item] = true
	}

	if len(seen) != producers*perProducer {
		t.Fatalf("drained %d items, want %d", len(seen), producers*perProducer)
	}
}

// --- Test 5: TryPop never blocks ---

func TestTryPop(t *testing.T) {
	q := queue.New[int]()

	if _, ok := q.TryPop(); ok {
		t.Fatal("TryPop() on empty queue returned true")
	}

	q.Push(42)
	item, ok := q.TryPop()
	if !ok || item != 42 {
		t.Fatalf("TryPop() = (%d, %v), want (42, true)", item, ok)
	}
	if !q.Empty() {
		t.Fatal("queue not empty after draining")
	}
}
