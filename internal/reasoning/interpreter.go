// Package reasoning runs the language interpreter: an asynchronous worker
// that turns scene snapshots and user prompts into spoken-ready text.
package reasoning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/queue"
	"github.com/wayline-dev/wayline-wearable/internal/scenebus"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

var (
	// ErrStopped is returned by futures whose task was abandoned because the
	// interpreter stopped before a worker picked it up.
	ErrStopped = errors.New("reasoning: interpreter stopped")
)

// Generator produces text for a prompt. Implementations wrap the actual
// language model; the interpreter only schedules them.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is the outcome of one interpretation task.
type Result struct {
	Text string
	Err  error
}

// Future resolves to the result of a submitted prompt.
type Future struct {
	ch chan Result
}

// Wait blocks until the result is ready or ctx is done.
func (f *Future) Wait(ctx context.Context) (string, error) {
	select {
	case r := <-f.ch:
		return r.Text, r.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type task struct {
	prompt string
	result chan Result
}

// Interpreter serializes prompt execution on a single worker over a blocking
// task queue. Submission never blocks the caller; results flow back through
// futures. Stop drains: every task accepted before Stop still executes and
// resolves its future; submissions after Stop resolve with ErrStopped.
type Interpreter struct {
	gen   Generator
	bus   *scenebus.Bus
	tasks *queue.Queue[task]

	enabled   bool
	done      chan struct{}
	mailbox   *scenebus.Mailbox
	sceneDone chan struct{}

	mu      sync.Mutex // orders SubmitPrompt against Stop
	stopped bool
}

// NewInterpreter builds an interpreter over gen. bus may be nil to disable
// ambient scene narration; SubmitPrompt still works.
func NewInterpreter(gen Generator, bus *scenebus.Bus) *Interpreter {
	return &Interpreter{gen: gen, bus: bus}
}

func (i *Interpreter) Name() string { return "reasoning" }

func (i *Interpreter) Initialize(cfg *config.Config) error {
	i.enabled = cfg.Reasoning.Enabled
	if !i.enabled {
		slog.Info("reasoning: disabled by configuration")
		return nil
	}
	if i.gen == nil {
		return errors.New("reasoning: enabled without a generator")
	}
	i.tasks = queue.New[task]()
	return nil
}

func (i *Interpreter) Start() error {
	if !i.enabled {
		return nil
	}

	i.done = make(chan struct{})
	go i.work()

	if i.bus != nil {
		mailbox, err := i.bus.SubscribeLatest("reasoning")
		if err != nil {
			return fmt.Errorf("subscribe scene bus: %w", err)
		}
		i.mailbox = mailbox
		i.sceneDone = make(chan struct{})
		go i.watchScenes()
	}
	return nil
}

// Stop invalidates the task queue and waits for the worker to drain it.
// Every submitted future resolves: executed tasks with their result,
// unreached ones with ErrStopped.
func (i *Interpreter) Stop() {
	if !i.enabled || i.done == nil {
		return
	}
	if i.mailbox != nil {
		_ = i.bus.Unsubscribe("reasoning")
		<-i.sceneDone
		i.mailbox = nil
	}

	// Ordered against SubmitPrompt: a task pushed before the flag flips is
	// in the backlog and will drain; anything after resolves ErrStopped.
	i.mu.Lock()
	i.stopped = true
	i.tasks.Invalidate()
	i.mu.Unlock()

	<-i.done
	i.done = nil
}

// SubmitPrompt enqueues a prompt and returns its future immediately. After
// Stop the future resolves with ErrStopped.
func (i *Interpreter) SubmitPrompt(prompt string) *Future {
	f := &Future{ch: make(chan Result, 1)}
	if !i.enabled {
		f.ch <- Result{Err: ErrStopped}
		return f
	}

	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		f.ch <- Result{Err: ErrStopped}
		return f
	}
	i.tasks.Push(task{prompt: prompt, result: f.ch})
	i.mu.Unlock()
	return f
}

// work executes tasks in submission order until the queue is invalidated
// and empty. Generation failures resolve the task's future; they never kill
// the worker.
func (i *Interpreter) work() {
	defer close(i.done)
	for {
		t, ok := i.tasks.Pop()
		if !ok {
			return
		}
		text, err := i.gen.Generate(context.Background(), t.prompt)
		if err != nil {
			slog.Warn("reasoning: generation failed", "error", err)
		}
		t.result <- Result{Text: text, Err: err}
	}
}

// watchScenes narrates the freshest scene whenever one arrives, dropping
// intermediate ones the mailbox displaced.
func (i *Interpreter) watchScenes() {
	defer close(i.sceneDone)
	for {
		scene, ok := i.mailbox.Receive()
		if !ok {
			return
		}
		f := i.SubmitPrompt(DescribeScene(scene))
		go func(traceID string) {
			text, err := f.Wait(context.Background())
			if err != nil {
				return
			}
			slog.Info("reasoning: scene narrated", "trace_id", traceID, "text", text)
		}(scene.TraceID)
	}
}

// DescribeScene renders a scene snapshot into the prompt handed to the
// generator: detections with distances, then recognized faces.
func DescribeScene(scene *types.Scene) string {
	var b strings.Builder
	b.WriteString("Describe the surroundings for the wearer. Visible objects:")
	if len(scene.Detections) == 0 {
		b.WriteString(" none.")
	}
	for _, d := range scene.Detections {
		if d.DistanceM > 0 {
			fmt.Fprintf(&b, " %s (%.1fm);", d.ClassName, d.DistanceM)
		} else {
			fmt.Fprintf(&b, " %s;", d.ClassName)
		}
	}
	for _, f := range scene.Faces {
		fmt.Fprintf(&b, " face: %s;", f.Name)
	}
	return b.String()
}
