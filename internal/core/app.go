package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
)

// App orchestrates the registered modules: initialize all, start all, block
// until the context is cancelled, stop all in reverse.
//
// Failure policy is unwind, not limp: the first Initialize or Start error
// aborts the launch, stops exactly the modules already started (reverse
// order), and leaves the rest untouched.
type App struct {
	cfg     *config.Config
	modules []Module
}

// NewApp builds an app over the given config.
func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Register appends a module. Start order is registration order; stop order
// is its reverse.
func (a *App) Register(m Module) {
	a.modules = append(a.modules, m)
}

// Run executes the full lifecycle and blocks until ctx is cancelled or
// launch fails. On a clean run it returns nil after every module has
// stopped and the HAL is shut down.
func (a *App) Run(ctx context.Context) error {
	if err := hal.Initialize(); err != nil {
		return fmt.Errorf("hal initialization: %w", err)
	}
	defer hal.Shutdown()

	initialized := make([]Module, 0, len(a.modules))
	for _, m := range a.modules {
		slog.Info("core: initializing module", "module", m.Name())
		if err := m.Initialize(a.cfg); err != nil {
			// Modules that already initialized hold devices and models;
			// unwind them before reporting the failure.
			a.stopAll(initialized)
			return fmt.Errorf("initialize %s: %w", m.Name(), err)
		}
		initialized = append(initialized, m)
	}

	started := make([]Module, 0, len(a.modules))
	for _, m := range a.modules {
		slog.Info("core: starting module", "module", m.Name())
		if err := m.Start(); err != nil {
			a.stopAll(started)
			return fmt.Errorf("start %s: %w", m.Name(), err)
		}
		started = append(started, m)
	}

	slog.Info("core: all modules running", "count", len(started))
	<-ctx.Done()
	slog.Info("core: shutdown requested")

	a.stopAll(started)
	return nil
}

// stopAll stops modules in reverse start order, bounding each Stop by the
// configured shutdown timeout so one wedged module cannot hang the exit.
func (a *App) stopAll(started []Module) {
	timeout := time.Duration(a.cfg.ShutdownTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for i := len(started) - 1; i >= 0; i-- {
		m := started[i]
		slog.Info("core: stopping module", "module", m.Name())

		done := make(chan struct{})
		go func() {
			m.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			slog.Error("core: module did not stop in time, abandoning", "module", m.Name(), "timeout", timeout)
		}
	}
}
