package perception

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
	"github.com/wayline-dev/wayline-wearable/internal/scenebus"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// Engine owns the camera and runs the per-frame pipeline on a single
// worker goroutine, publishing frame-free snapshots to the scene bus.
//
// One worker, in-order stages: borrowed frames never escape the iteration
// that grabbed them, so the release discipline stays local to run().
type Engine struct {
	bus   *scenebus.Bus
	index FaceIndex

	camera   hal.Camera
	pipeline *Pipeline
	sessions []inference.Session
	interval time.Duration
	grabTO   time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewEngine builds an engine publishing to bus. index may be nil; face
// recognition then labels every face "unknown".
func NewEngine(bus *scenebus.Bus, index FaceIndex) *Engine {
	return &Engine{bus: bus, index: index}
}

func (e *Engine) Name() string { return "perception" }

// Initialize opens the camera and loads every configured model. A failure
// partway releases everything acquired so far; the engine is then inert.
func (e *Engine) Initialize(cfg *config.Config) error {
	camera, err := hal.OpenCamera(hal.CameraConfig{
		Backend:   cfg.Camera.Backend,
		DeviceID:  cfg.Camera.DeviceID,
		Width:     cfg.Camera.Width,
		Height:    cfg.Camera.Height,
		TargetFPS: cfg.Camera.TargetFPS,
	})
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	e.camera = camera
	e.grabTO = time.Duration(cfg.Camera.GrabTimeoutMS) * time.Millisecond
	if cfg.Camera.TargetFPS > 0 {
		e.interval = time.Duration(float64(time.Second) / cfg.Camera.TargetFPS)
	}

	var stages []Processor
	fail := func(err error) error {
		e.releaseResources()
		return err
	}

	if mc := cfg.Perception.ObjectDetector; mc != nil {
		session, err := inference.Open(cfg.Perception.Runtime, mc.ModelPath)
		if err != nil {
			return fail(fmt.Errorf("load object detector: %w", err))
		}
		e.sessions = append(e.sessions, session)
		stages = append(stages, newDetectorStage(session, mc))
	}
	if mc := cfg.Perception.DepthEstimator; mc != nil {
		session, err := inference.Open(cfg.Perception.Runtime, mc.ModelPath)
		if err != nil {
			return fail(fmt.Errorf("load depth estimator: %w", err))
		}
		e.sessions = append(e.sessions, session)
		stages = append(stages, newDepthStage(session, mc))
	}
	if mc := cfg.Perception.FaceRecognizer; mc != nil {
		session, err := inference.Open(cfg.Perception.Runtime, mc.ModelPath)
		if err != nil {
			return fail(fmt.Errorf("load face recognizer: %w", err))
		}
		e.sessions = append(e.sessions, session)
		stages = append(stages, newFaceStage(session, mc, e.index))
	}

	e.pipeline = NewPipeline(stages...)
	slog.Info("perception: engine initialized",
		"buffer_mode", camera.BufferMode().String(),
		"stages", e.pipeline.Stages(),
	)
	return nil
}

// Start begins capture and spawns the pipeline worker.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if e.camera == nil {
		return errors.New("perception: engine not initialized")
	}

	if err := e.camera.StartCapture(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.running = true
	go e.run(e.stop, e.done)
	return nil
}

// Stop halts the worker, waits for it to finish the in-flight frame, and
// releases all resources. Idempotent, and releases the camera and sessions
// even when Start was never called (initialization unwind).
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.releaseResources()
		return
	}
	e.running = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	<-done
	e.releaseResources()
}

func (e *Engine) run(stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}
		start := time.Now()

		frame, err := e.camera.GrabFrame(e.grabTO)
		if err != nil {
			if !errors.Is(err, hal.ErrTimeout) {
				slog.Warn("perception: grab failed, skipping iteration", "error", err)
			}
			continue
		}

		guard := hal.NewFrameGuard(e.camera, frame)
		scene := &types.SceneData{Frame: frame, TraceID: frame.TraceID}

		runErr := e.pipeline.Run(scene)
		var snapshot *types.Scene
		if runErr == nil && scene.Valid {
			// Snapshot before release: after this the borrowed buffer is gone.
			snapshot = scene.Snapshot()
		}
		if err := guard.Release(); err != nil {
			slog.Error("perception: frame release failed", "trace_id", frame.TraceID, "error", err)
		}

		if snapshot != nil {
			e.bus.Publish(snapshot)
		}

		if e.interval > 0 {
			if sleep := e.interval - time.Since(start); sleep > 0 {
				select {
				case <-stop:
					return
				case <-time.After(sleep):
				}
			}
		}
	}
}

func (e *Engine) releaseResources() {
	for _, s := range e.sessions {
		if err := s.Close(); err != nil {
			slog.Warn("perception: session close failed", "error", err)
		}
	}
	e.sessions = nil
	if e.camera != nil {
		if err := e.camera.Close(); err != nil {
			slog.Warn("perception: camera close failed", "error", err)
		}
		e.camera = nil
	}
}
