package inference

import (
	"fmt"
	"os"
)

// simRuntime is the off-hardware backend, the inference counterpart of the
// sim camera and sim audio device: models "load" if the file exists and
// every run yields an empty output of a plausible shape. Hardware runtimes
// register themselves from their own build-tagged packages.
type simRuntime struct{}

type simSession struct{}

func init() {
	Register("sim", simRuntime{})
}

func (simRuntime) Load(path string) (Session, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrModelLoad, path, err)
	}
	return simSession{}, nil
}

func (simSession) Run(input *Tensor) ([]*Tensor, error) {
	if input == nil || len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInference)
	}
	// Zero detection rows: shape is valid, content is empty.
	return []*Tensor{{Shape: []int{1, 0, 6}, Data: nil}}, nil
}

func (simSession) Close() error { return nil }
