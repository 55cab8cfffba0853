package perception

import (
	"testing"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
	"github.com/wayline-dev/wayline-wearable/internal/scenebus"
)

// fakeRuntime serves canned detector outputs for engine tests.
type fakeRuntime struct{}

type fakeSession struct {
	closed bool
}

func (fakeRuntime) Load(path string) (inference.Session, error) {
	return &fakeSession{}, nil
}

func (s *fakeSession) Run(input *inference.Tensor) ([]*inference.Tensor, error) {
	// One confident detection centered in the frame.
	return []*inference.Tensor{{
		Shape: []int{1, 1, 6},
		Data:  []float32{160, 160, 80, 80, 0.95, 1.0},
	}}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func init() {
	inference.Register("fake", fakeRuntime{})
}

func engineConfig() *config.Config {
	return &config.Config{
		Camera: config.CameraConfig{
			Backend:       "sim",
			Width:         64,
			Height:        64,
			TargetFPS:     0, // no pacing in tests
			GrabTimeoutMS: 500,
		},
		Perception: config.PerceptionConfig{
			Runtime: "fake",
			ObjectDetector: &config.ModelConfig{
				ModelPath:    "detector.bin",
				InputWidth:   320,
				InputHeight:  320,
				Confidence:   0.5,
				IoUThreshold: 0.5,
				ClassNames:   []string{"person"},
			},
		},
	}
}

// End-to-end over the sim camera: grab, detect, publish a frame-free
// snapshot, release. The subscriber must see the decoded detection.
func TestEnginePublishesScenes(t *testing.T) {
	bus := scenebus.New()
	defer bus.Close()

	mailbox, err := bus.SubscribeLatest("test")
	if err != nil {
		t.Fatalf("SubscribeLatest: %v", err)
	}

	engine := NewEngine(bus, nil)
	cfg := engineConfig()
	if err := engine.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer engine.Stop()

	deadline := time.After(2 * time.Second)
	var got bool
	for !got {
		select {
		case <-deadline:
			t.Fatal("no scene published within deadline")
		default:
		}
		if scene, ok := mailbox.TryReceive(); ok {
			if len(scene.Detections) != 1 {
				t.Fatalf("detections: got %d, want 1", len(scene.Detections))
			}
			d := scene.Detections[0]
			if d.ClassName != "person" || d.Score < 0.9 {
				t.Fatalf("detection: %+v", d)
			}
			// Frame-free snapshot: no frame reference survives release.
			if scene.TraceID == "" {
				t.Fatal("snapshot lost its trace id")
			}
			got = true
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestEngineStopIsIdempotent(t *testing.T) {
	bus := scenebus.New()
	defer bus.Close()

	engine := NewEngine(bus, nil)
	if err := engine.Initialize(engineConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := engine.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	engine.Stop()
	engine.Stop() // second stop must not panic or block
}

// Stop on an initialized-but-never-started engine (initialization unwind in
// the orchestrator) must still close the camera and the loaded sessions.
func TestEngineStopBeforeStartReleasesResources(t *testing.T) {
	bus := scenebus.New()
	defer bus.Close()

	engine := NewEngine(bus, nil)
	if err := engine.Initialize(engineConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	engine.Stop()
	if engine.camera != nil {
		t.Fatal("camera must be closed by Stop without Start")
	}
	if engine.sessions != nil {
		t.Fatal("sessions must be released by Stop without Start")
	}
}

func TestEngineInitializeFailureReleasesCamera(t *testing.T) {
	bus := scenebus.New()
	defer bus.Close()

	cfg := engineConfig()
	cfg.Perception.Runtime = "no-such-runtime"

	engine := NewEngine(bus, nil)
	if err := engine.Initialize(cfg); err == nil {
		t.Fatal("Initialize with unknown runtime must fail")
	}
	if engine.camera != nil {
		t.Fatal("camera must be released after failed initialization")
	}
}
