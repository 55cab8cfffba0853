package hal

import (
	"errors"
	"testing"
	"time"
)

func newSim(t *testing.T, mode BufferMode, slots int) Camera {
	t.Helper()
	cam, err := OpenCamera(CameraConfig{
		Backend:   "sim",
		Width:     8,
		Height:    8,
		SlotCount: slots,
		SimMode:   mode,
	})
	if err != nil {
		t.Fatalf("OpenCamera: %v", err)
	}
	if err := cam.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	return cam
}

// Scenario: borrowed mode over a 4-slot ring.
// 1. Grab-release cycles beyond the slot count must all succeed.
// 2. Holding every slot must make the next grab time out.
// 3. Releasing one slot must make a grab succeed again.
func TestBorrowedSlotExhaustion(t *testing.T) {
	const slots = 4
	cam := newSim(t, BufferBorrowed, slots)
	defer cam.Close()

	// Step 1: N+2 sequential cycles through a N-slot ring.
	for i := 0; i < slots+2; i++ {
		f, err := cam.GrabFrame(time.Second)
		if err != nil {
			t.Fatalf("cycle %d grab: %v", i, err)
		}
		if err := cam.ReleaseFrame(f); err != nil {
			t.Fatalf("cycle %d release: %v", i, err)
		}
	}

	// Step 2: hold everything, next grab starves.
	held := make([]*Frame, 0, slots)
	for i := 0; i < slots; i++ {
		f, err := cam.GrabFrame(time.Second)
		if err != nil {
			t.Fatalf("grab %d: %v", i, err)
		}
		held = append(held, f)
	}
	if _, err := cam.GrabFrame(20 * time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("grab with all slots held: got %v, want ErrTimeout", err)
	}

	// Step 3: one release unblocks the ring.
	if err := cam.ReleaseFrame(held[0]); err != nil {
		t.Fatalf("release: %v", err)
	}
	f, err := cam.GrabFrame(time.Second)
	if err != nil {
		t.Fatalf("grab after release: %v", err)
	}
	held[0] = f

	for _, f := range held {
		if err := cam.ReleaseFrame(f); err != nil {
			t.Fatalf("cleanup release: %v", err)
		}
	}
}

func TestBorrowedDoubleReleaseRejected(t *testing.T) {
	cam := newSim(t, BufferBorrowed, 2)
	defer cam.Close()

	f, err := cam.GrabFrame(time.Second)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	if err := cam.ReleaseFrame(f); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := cam.ReleaseFrame(f); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("second release: got %v, want ErrInvalidArg", err)
	}
}

// Owned mode never starves: the slot returns to the pool at grab time, so the
// caller can hold arbitrarily many frames without blocking capture.
func TestOwnedModeNeverStarves(t *testing.T) {
	const slots = 2
	cam := newSim(t, BufferOwned, slots)
	defer cam.Close()

	frames := make([]*Frame, 0, slots*3)
	for i := 0; i < slots*3; i++ {
		f, err := cam.GrabFrame(time.Second)
		if err != nil {
			t.Fatalf("grab %d: %v", i, err)
		}
		frames = append(frames, f)
	}

	// Every held frame keeps its own pattern: owned data is independent of
	// the ring, later grabs must not overwrite earlier ones.
	for i := 1; i < len(frames); i++ {
		if frames[i].Data[0] == frames[i-1].Data[0] {
			t.Fatalf("frames %d and %d share a fill pattern, data is aliased", i-1, i)
		}
	}

	for _, f := range frames {
		if err := cam.ReleaseFrame(f); err != nil {
			t.Fatalf("release: %v", err)
		}
	}
	// Unbalanced release is still an error even when data is owned.
	if err := cam.ReleaseFrame(frames[0]); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("extra release: got %v, want ErrInvalidArg", err)
	}
}

func TestFrameGuardReleasesExactlyOnce(t *testing.T) {
	cam := newSim(t, BufferBorrowed, 2)
	defer cam.Close()

	f, err := cam.GrabFrame(time.Second)
	if err != nil {
		t.Fatalf("grab: %v", err)
	}
	g := NewFrameGuard(cam, f)
	if !g.Borrowed() {
		t.Fatal("guard should report borrowed for a borrowed-mode camera")
	}
	if g.Frame() == nil {
		t.Fatal("guard frame should be accessible before release")
	}

	if err := g.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Second release is a no-op, not a double release at the device.
	if err := g.Release(); err != nil {
		t.Fatalf("idempotent release: %v", err)
	}
	if g.Frame() != nil {
		t.Fatal("borrowed frame must be unreachable after release")
	}
}

func TestOpenCameraValidation(t *testing.T) {
	if _, err := OpenCamera(CameraConfig{Backend: "sim", Width: 0, Height: 480}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("zero width: got %v, want ErrInvalidArg", err)
	}
	if _, err := OpenCamera(CameraConfig{Backend: "dshow", Width: 640, Height: 480}); !errors.Is(err, ErrNotSupported) {
		t.Fatalf("unknown backend: got %v, want ErrNotSupported", err)
	}
}

func TestSimAudioCaptureAppliesFilter(t *testing.T) {
	dev, err := OpenAudio(AudioConfig{
		Backend:    "sim",
		Direction:  DirectionCapture,
		SampleRate: 16000,
		Channels:   1,
	})
	if err != nil {
		t.Fatalf("OpenAudio: %v", err)
	}
	defer dev.Close()

	dev.SetCaptureFilter(func(samples []int16) {
		for i := range samples {
			samples[i] = 0
		}
	})

	chunk, err := dev.CaptureChunk(160)
	if err != nil {
		t.Fatalf("CaptureChunk: %v", err)
	}
	if chunk.Frames() != 160 {
		t.Fatalf("frames: got %d, want 160", chunk.Frames())
	}
	for i, s := range chunk.Samples {
		if s != 0 {
			t.Fatalf("sample %d survived the filter: %d", i, s)
		}
	}
}

func TestAudioDirectionEnforced(t *testing.T) {
	capture, err := OpenAudio(AudioConfig{Backend: "sim", Direction: DirectionCapture, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("OpenAudio capture: %v", err)
	}
	defer capture.Close()
	if err := capture.PlaybackChunk(&AudioChunk{Samples: make([]int16, 16)}); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("playback on capture device: got %v, want ErrInvalidArg", err)
	}

	playback, err := OpenAudio(AudioConfig{Backend: "sim", Direction: DirectionPlayback, SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("OpenAudio playback: %v", err)
	}
	defer playback.Close()
	if _, err := playback.CaptureChunk(16); !errors.Is(err, ErrInvalidArg) {
		t.Fatalf("capture on playback device: got %v, want ErrInvalidArg", err)
	}
}
