package hal

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// initBackends/shutdownBackends bracket GStreamer's global state for every
// gst-based device on the process.
func initBackends() error {
	gst.Init(nil)
	return nil
}

func shutdownBackends() {
	// GStreamer keeps its global state until process exit; per-device
	// resources are released by each Close.
}

// gstCamera captures via a GStreamer appsink. Every sample is copied out of
// the mapped buffer before GStreamer reuses it, so grabbed frames are
// caller-owned (BufferOwned) and release is pure bookkeeping.
type gstCamera struct {
	width, height int
	pipeline      *gst.Pipeline
	appsink       *app.Sink

	frames chan *Frame

	mu        sync.Mutex
	started   bool
	closed    bool
	outstand  int
	recovered atomic.Bool // one pipeline restart allowed per IO stall

	frameCount uint64
}

func openGstCamera(cfg CameraConfig) (Camera, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pipeline: %v", ErrIO, err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("%w: v4l2src unavailable: %v", ErrNotSupported, err)
	}
	src.SetProperty("device", fmt.Sprintf("/dev/video%d", cfg.DeviceID))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("%w: videoconvert unavailable: %v", ErrNotSupported, err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("%w: videoscale unavailable: %v", ErrNotSupported, err)
	}

	videorate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("%w: videorate unavailable: %v", ErrNotSupported, err)
	}
	videorate.SetProperty("drop-only", true)
	videorate.SetProperty("skip-to-first", true)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("%w: capsfilter unavailable: %v", ErrNotSupported, err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(videoCaps(cfg.Width, cfg.Height, cfg.TargetFPS)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("%w: appsink unavailable: %v", ErrNotSupported, err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1) // keep only the latest frame
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, scaler, videorate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, videorate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("%w: failed to link camera pipeline: %v", ErrIO, err)
	}

	c := &gstCamera{
		width:    cfg.Width,
		height:   cfg.Height,
		pipeline: pipeline,
		appsink:  appsink,
		frames:   make(chan *Frame, 2),
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: c.onNewSample,
	})

	return c, nil
}

// onNewSample copies the sample out of GStreamer's buffer and hands it to
// GrabFrame. Per-sample failures skip the frame; they never kill the stream.
func (c *gstCamera) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		slog.Warn("hal: failed to pull sample from appsink, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("hal: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		slog.Warn("hal: empty buffer received")
		return gst.FlowOK
	}

	// Copy: GStreamer reuses the mapped buffer after this callback.
	frameData := make([]byte, len(data))
	copy(frameData, data)
	buffer.Unmap()

	atomic.AddUint64(&c.frameCount, 1)

	f := &Frame{
		Data:      frameData,
		Width:     c.width,
		Height:    c.height,
		Format:    PixelFormatRGB24,
		SizeBytes: len(frameData),
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		slot:      -1,
	}

	// Latest-wins: drop the stale frame if the consumer is behind.
	select {
	case c.frames <- f:
	default:
		select {
		case <-c.frames:
		default:
		}
		select {
		case c.frames <- f:
		default:
		}
	}

	return gst.FlowOK
}

func (c *gstCamera) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: camera closed", ErrInvalidArg)
	}
	if c.started {
		return nil
	}
	if err := c.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("%w: failed to start pipeline: %v", ErrIO, err)
	}
	c.started = true
	return nil
}

func (c *gstCamera) GrabFrame(timeout time.Duration) (*Frame, error) {
	select {
	case f := <-c.frames:
		c.mu.Lock()
		c.outstand++
		c.mu.Unlock()
		c.recovered.Store(false)
		return f, nil
	case <-time.After(timeout):
		// One recovery attempt per stall: bounce the pipeline in case the
		// source wedged, then report the miss as a plain timeout.
		if c.recovered.CompareAndSwap(false, true) {
			slog.Warn("hal: camera stalled, restarting pipeline")
			_ = c.pipeline.SetState(gst.StateNull)
			_ = c.pipeline.SetState(gst.StatePlaying)
		}
		return nil, ErrTimeout
	}
}

func (c *gstCamera) ReleaseFrame(f *Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidArg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outstand == 0 {
		return fmt.Errorf("%w: release without matching grab", ErrInvalidArg)
	}
	c.outstand--
	return nil
}

func (c *gstCamera) BufferMode() BufferMode { return BufferOwned }

func (c *gstCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.started = false
	if err := c.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("%w: failed to stop pipeline: %v", ErrIO, err)
	}
	return nil
}

// videoCaps builds the RGB caps string, handling fractional framerates
// (0.5 Hz -> framerate=1/2).
func videoCaps(width, height int, fps float64) string {
	numerator, denominator := 1, 1
	if fps >= 1.0 {
		numerator = int(fps)
	} else if fps > 0 {
		denominator = int(1.0 / fps)
	}
	return fmt.Sprintf(
		"video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d",
		width, height, numerator, denominator,
	)
}
