package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/config"
)

// recorder logs lifecycle calls into a shared journal so tests can assert
// exact ordering across modules.
type recorder struct {
	name      string
	journal   *journal
	initErr   error
	startErr  error
	stopCount int
}

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) String() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return strings.Join(j.entries, " ")
}

func (r *recorder) Initialize(cfg *config.Config) error {
	r.journal.add("init:" + r.name)
	return r.initErr
}

func (r *recorder) Start() error {
	r.journal.add("start:" + r.name)
	return r.startErr
}

func (r *recorder) Stop() {
	r.stopCount++
	r.journal.add("stop:" + r.name)
}

func (r *recorder) Name() string { return r.name }

func testConfig() *config.Config {
	return &config.Config{ShutdownTimeoutS: 2}
}

func TestCleanRunStopsInReverseOrder(t *testing.T) {
	j := &journal{}
	a, b := &recorder{name: "a", journal: j}, &recorder{name: "b", journal: j}

	app := NewApp(testConfig())
	app.Register(a)
	app.Register(b)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	want := "init:a init:b start:a start:b stop:b stop:a"
	if got := j.String(); got != want {
		t.Fatalf("lifecycle order:\n got  %s\n want %s", got, want)
	}
}

// Scenario: module b fails to start.
// 1. a (already started) must be stopped exactly once.
// 2. c (never started) must not be touched at all.
// 3. Run returns the start error.
func TestStartFailureUnwindsStartedOnly(t *testing.T) {
	j := &journal{}
	boom := errors.New("device wedged")
	a := &recorder{name: "a", journal: j}
	b := &recorder{name: "b", journal: j, startErr: boom}
	c := &recorder{name: "c", journal: j}

	app := NewApp(testConfig())
	app.Register(a)
	app.Register(b)
	app.Register(c)

	err := app.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run: got %v, want wrapped %v", err, boom)
	}

	if a.stopCount != 1 {
		t.Fatalf("module a stopped %d times, want exactly 1", a.stopCount)
	}
	if b.stopCount != 0 {
		t.Fatalf("failed module b must not be stopped, got %d", b.stopCount)
	}
	if c.stopCount != 0 {
		t.Fatalf("unstarted module c must not be stopped, got %d", c.stopCount)
	}

	want := "init:a init:b init:c start:a start:b stop:a"
	if got := j.String(); got != want {
		t.Fatalf("lifecycle order:\n got  %s\n want %s", got, want)
	}
}

// Scenario: module b fails to initialize.
// 1. No module is started.
// 2. a (already initialized, holding resources) is stopped exactly once.
// 3. b and c are never stopped: b failed, c was never reached.
func TestInitFailureUnwindsInitializedPrefix(t *testing.T) {
	j := &journal{}
	boom := errors.New("model missing")
	a := &recorder{name: "a", journal: j}
	b := &recorder{name: "b", journal: j, initErr: boom}
	c := &recorder{name: "c", journal: j}

	app := NewApp(testConfig())
	app.Register(a)
	app.Register(b)
	app.Register(c)

	err := app.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run: got %v, want wrapped %v", err, boom)
	}

	if a.stopCount != 1 {
		t.Fatalf("module a stopped %d times, want exactly 1", a.stopCount)
	}
	if b.stopCount != 0 || c.stopCount != 0 {
		t.Fatalf("b/c stopped %d/%d times, want 0/0", b.stopCount, c.stopCount)
	}

	want := "init:a init:b stop:a"
	if got := j.String(); got != want {
		t.Fatalf("lifecycle order:\n got  %s\n want %s", got, want)
	}
}
