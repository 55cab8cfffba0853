// Package hal isolates device I/O behind a uniform open/capture/release/close
// contract so the rest of the system never touches platform APIs directly.
//
// The one rule this package refuses to paper over: frame buffer ownership
// differs by backend. Memory-mapped backends hand out frames whose Data
// aliases a fixed hardware slot — the pointer dies the instant ReleaseFrame
// is called. Copying backends hand out caller-owned allocations. Every
// Camera reports which world it lives in via BufferMode(), and FrameGuard
// keeps the distinction visible at call sites.
package hal

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation failure sentinels. Timeout is an expected transient state, not a
// failure: callers skip the iteration and try again.
var (
	ErrDeviceNotFound = errors.New("hal: device not found")
	ErrDeviceBusy     = errors.New("hal: device busy")
	ErrIO             = errors.New("hal: i/o error")
	ErrTimeout        = errors.New("hal: timed out")
	ErrNotSupported   = errors.New("hal: not supported")
	ErrInvalidArg     = errors.New("hal: invalid argument")
)

// PixelFormat identifies the layout of raw frame data.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	// PixelFormatRGB24 is 24 bits per pixel, interleaved 8-bit R, G, B.
	PixelFormatRGB24
	// PixelFormatBGR24 is 24 bits per pixel, interleaved 8-bit B, G, R.
	PixelFormatBGR24
	// PixelFormatYUYV is packed YUV 4:2:2.
	PixelFormatYUYV
)

// BufferMode tags who owns a grabbed frame's data buffer.
type BufferMode int

const (
	// BufferBorrowed: Data aliases a fixed hardware slot owned by the HAL.
	// All consumption MUST complete before ReleaseFrame; the slot is
	// re-queued for hardware reuse at that instant.
	BufferBorrowed BufferMode = iota
	// BufferOwned: Data is a fresh allocation owned by the caller.
	// ReleaseFrame only balances bookkeeping and never invalidates Data.
	BufferOwned
)

// String returns the mode name for logs.
func (m BufferMode) String() string {
	switch m {
	case BufferBorrowed:
		return "borrowed"
	case BufferOwned:
		return "owned"
	default:
		return "unknown"
	}
}

// Frame is a single captured camera frame.
//
// Ownership: exclusively owned by the HAL until ReleaseFrame; validity of
// Data after release depends on the camera's BufferMode (see above).
type Frame struct {
	// Data contains the raw pixel bytes.
	Data []byte
	// Width of the frame in pixels.
	Width int
	// Height of the frame in pixels.
	Height int
	// Format is the pixel layout of Data.
	Format PixelFormat
	// SizeBytes is the meaningful length of Data.
	SizeBytes int
	// Timestamp is the capture time (monotonic-backed wall clock).
	Timestamp time.Time
	// TraceID is a unique identifier for correlating a frame across stages.
	TraceID string

	// slot is the opaque buffer-slot token for borrowed frames. Release is
	// keyed on this token, never on pointer identity, so copying the Frame
	// struct cannot corrupt slot recovery. -1 means "owned copy".
	slot int
}

// Camera is the uniform capture contract over all backends.
type Camera interface {
	// StartCapture begins the capture stream. Must be called once after
	// open, before the first GrabFrame.
	StartCapture() error

	// GrabFrame blocks until the next frame is available or timeout
	// expires. Returns ErrTimeout when no frame arrived in time (skip the
	// iteration) and ErrIO on a device error (also skippable; one
	// device-specific recovery attempt has already been made).
	GrabFrame(timeout time.Duration) (*Frame, error)

	// ReleaseFrame returns the frame's buffer to the HAL. Must be called
	// exactly once per successful grab; a second release of the same frame
	// is ErrInvalidArg.
	ReleaseFrame(f *Frame) error

	// BufferMode reports the ownership semantics of grabbed frames.
	BufferMode() BufferMode

	// Close stops capture and releases all device resources. Safe to call
	// once on an open handle.
	Close() error
}

// CameraConfig parameterizes OpenCamera.
type CameraConfig struct {
	Backend   string // v4l2, gstreamer, sim
	DeviceID  int
	Width     int
	Height    int
	TargetFPS float64

	// SlotCount is the ring-buffer depth for mmap backends (default 4).
	SlotCount int

	// SimMode selects the ownership semantics the sim backend emulates.
	SimMode BufferMode
}

// OpenCamera opens a camera on the configured backend.
//
// DeviceNotFound/DeviceBusy are fatal to the caller's initialization;
// ErrNotSupported means the backend is unavailable on this build or
// platform and the caller should degrade, not abort.
func OpenCamera(cfg CameraConfig) (Camera, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: resolution %dx%d", ErrInvalidArg, cfg.Width, cfg.Height)
	}
	if cfg.SlotCount <= 0 {
		cfg.SlotCount = defaultSlotCount
	}

	switch cfg.Backend {
	case "v4l2":
		return openV4L2Camera(cfg)
	case "gstreamer":
		return openGstCamera(cfg)
	case "sim":
		return openSimCamera(cfg)
	default:
		return nil, fmt.Errorf("%w: camera backend %q", ErrNotSupported, cfg.Backend)
	}
}

// defaultSlotCount matches the ring depth requested from mmap backends.
const defaultSlotCount = 4

var (
	initOnce sync.Once
	initErr  error
)

// Initialize brackets global backend state. Must be called once before any
// open; repeated calls are no-ops returning the first result.
func Initialize() error {
	initOnce.Do(func() {
		initErr = initBackends()
	})
	return initErr
}

// Shutdown releases global backend state. Called once at process exit,
// after every device handle is closed.
func Shutdown() {
	shutdownBackends()
}
