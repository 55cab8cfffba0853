package inference

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenUnknownRuntime(t *testing.T) {
	if _, err := Open("no-such-backend", "model.bin"); !errors.Is(err, ErrUnknownRuntime) {
		t.Fatalf("Open: got %v, want ErrUnknownRuntime", err)
	}
}

func TestSimRuntimeLoadRequiresFile(t *testing.T) {
	if _, err := Open("sim", filepath.Join(t.TempDir(), "missing.bin")); !errors.Is(err, ErrModelLoad) {
		t.Fatalf("missing model: got %v, want ErrModelLoad", err)
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, []byte("weights"), 0o644); err != nil {
		t.Fatal(err)
	}
	session, err := Open("sim", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer session.Close()

	outputs, err := session.Run(&Tensor{Shape: []int{1, 3, 2, 2}, Data: make([]float32, 12)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("outputs: got %d, want 1", len(outputs))
	}
}

func TestTensorNumElements(t *testing.T) {
	tensor := &Tensor{Shape: []int{1, 3, 4, 4}}
	if n := tensor.NumElements(); n != 48 {
		t.Fatalf("NumElements: got %d, want 48", n)
	}
}
