// Package core owns the application lifecycle: module registration, ordered
// startup, and unwind on failure or shutdown signal.
package core

import "github.com/wayline-dev/wayline-wearable/internal/config"

// Module is a unit of the application with a managed lifecycle. The app
// drives every module through the same three phases:
//
//	Initialize — acquire resources (devices, models, connections). A module
//	that fails here must have released everything it grabbed before
//	returning; the app will not call Stop on it.
//
//	Start — begin doing work, typically by spawning goroutines. Must return
//	promptly; long-running work happens on the module's own goroutines.
//
//	Stop — halt work and release resources. Called exactly once for every
//	module whose Initialize succeeded: in reverse start order after a run,
//	or in reverse initialization order when a later module's Initialize
//	fails. Must therefore release resources even when Start never ran, and
//	must not block indefinitely.
type Module interface {
	Initialize(cfg *config.Config) error
	Start() error
	Stop()
	Name() string
}
