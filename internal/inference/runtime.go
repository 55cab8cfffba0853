// Package inference abstracts the model execution runtime. Backends register
// themselves by name; the perception engine opens sessions through the
// registry and never links a runtime directly.
package inference

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrUnknownRuntime = errors.New("inference: unknown runtime")
	ErrModelLoad      = errors.New("inference: model load failed")
	ErrInference      = errors.New("inference: execution failed")
)

// Tensor is a dense float32 tensor in row-major layout.
type Tensor struct {
	// Shape is the dimension sizes, outermost first (e.g. [1 3 640 640]).
	Shape []int
	Data  []float32
}

// NumElements returns the product of the shape dimensions.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Session is a loaded model ready to run. Run is safe for one caller at a
// time; the perception engine serializes access per session.
type Session interface {
	// Run executes the model on one input and returns its output tensors.
	Run(input *Tensor) ([]*Tensor, error)
	// Close releases the session's runtime resources.
	Close() error
}

// Runtime loads model files into executable sessions.
type Runtime interface {
	// Load opens the model at path. Missing or corrupt models return an
	// error wrapping ErrModelLoad.
	Load(path string) (Session, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Runtime{}
)

// Register makes a runtime available under name. Typically called from a
// backend package's init. Re-registering a name panics: two backends
// claiming the same name is a wiring bug.
func Register(name string, rt Runtime) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("inference: runtime %q registered twice", name))
	}
	registry[name] = rt
}

// Open loads a model on the named runtime.
func Open(runtime, path string) (Session, error) {
	registryMu.RLock()
	rt, ok := registry[runtime]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownRuntime, runtime, Runtimes())
	}
	return rt.Load(path)
}

// Runtimes lists the registered runtime names, sorted.
func Runtimes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
