//go:build linux

package hal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// v4l2Camera captures through memory-mapped kernel ring buffers.
//
// This is the borrowed-slot backend: a grabbed frame's Data aliases one of
// SlotCount fixed mmap'd slots, and ReleaseFrame re-queues that slot for
// hardware reuse — the pointer is dead the instant release returns. Grab
// and release are keyed on the slot index token, not pointer identity.
type v4l2Camera struct {
	fd            int
	width, height int
	buffers       [][]byte

	mu      sync.Mutex
	started bool
	closed  bool
	held    []bool
}

func openV4L2Camera(cfg CameraConfig) (Camera, error) {
	path := fmt.Sprintf("/dev/video%d", cfg.DeviceID)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		switch err {
		case unix.ENOENT, unix.ENODEV, unix.ENXIO:
			return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
		case unix.EBUSY:
			return nil, fmt.Errorf("%w: %s", ErrDeviceBusy, path)
		default:
			return nil, fmt.Errorf("%w: open %s: %v", ErrIO, path, err)
		}
	}

	c := &v4l2Camera{fd: fd}

	// Negotiate RGB24 at the requested resolution; the driver may adjust.
	var format v4l2Format
	format.Type = v4l2BufTypeVideoCapture
	format.Pix.Width = uint32(cfg.Width)
	format.Pix.Height = uint32(cfg.Height)
	format.Pix.PixelFormat = v4l2PixFmtRGB24
	format.Pix.Field = v4l2FieldNone
	if err := ioctl(fd, vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: set format: %v", ErrNotSupported, err)
	}
	if format.Pix.PixelFormat != v4l2PixFmtRGB24 {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: device cannot deliver RGB24", ErrNotSupported)
	}
	c.width = int(format.Pix.Width)
	c.height = int(format.Pix.Height)

	var req v4l2RequestBuffers
	req.Count = uint32(cfg.SlotCount)
	req.Type = v4l2BufTypeVideoCapture
	req.Memory = v4l2MemoryMmap
	if err := ioctl(fd, vidiocReqBufs, unsafe.Pointer(&req)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: request buffers: %v", ErrIO, err)
	}
	if req.Count == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: driver granted zero buffers", ErrIO)
	}

	c.buffers = make([][]byte, req.Count)
	c.held = make([]bool, req.Count)
	for i := range c.buffers {
		var buf v4l2Buffer
		buf.Index = uint32(i)
		buf.Type = v4l2BufTypeVideoCapture
		buf.Memory = v4l2MemoryMmap
		if err := ioctl(fd, vidiocQueryBuf, unsafe.Pointer(&buf)); err != nil {
			c.unmapAll()
			unix.Close(fd)
			return nil, fmt.Errorf("%w: query buffer %d: %v", ErrIO, i, err)
		}
		data, err := unix.Mmap(fd, int64(uint32(buf.M)), int(buf.Length),
			unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
		if err != nil {
			c.unmapAll()
			unix.Close(fd)
			return nil, fmt.Errorf("%w: mmap buffer %d: %v", ErrIO, i, err)
		}
		c.buffers[i] = data
	}

	slog.Info("hal: v4l2 camera opened",
		"device", path,
		"resolution", fmt.Sprintf("%dx%d", c.width, c.height),
		"slots", len(c.buffers),
	)
	return c, nil
}

func (c *v4l2Camera) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: camera closed", ErrInvalidArg)
	}
	if c.started {
		return nil
	}

	for i := range c.buffers {
		if err := c.queueSlot(i); err != nil {
			return fmt.Errorf("%w: enqueue slot %d: %v", ErrIO, i, err)
		}
	}

	streamType := uint32(v4l2BufTypeVideoCapture)
	if err := ioctl(c.fd, vidiocStreamOn, unsafe.Pointer(&streamType)); err != nil {
		return fmt.Errorf("%w: stream on: %v", ErrIO, err)
	}
	c.started = true
	return nil
}

func (c *v4l2Camera) GrabFrame(timeout time.Duration) (*Frame, error) {
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: capture not started", ErrInvalidArg)
	}
	c.mu.Unlock()

	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil && err != unix.EINTR {
		return nil, fmt.Errorf("%w: poll: %v", ErrIO, err)
	}
	if n == 0 {
		return nil, ErrTimeout
	}

	var buf v4l2Buffer
	buf.Type = v4l2BufTypeVideoCapture
	buf.Memory = v4l2MemoryMmap
	if err := ioctl(c.fd, vidiocDQBuf, unsafe.Pointer(&buf)); err != nil {
		if err == unix.EAGAIN {
			return nil, ErrTimeout
		}
		// One recovery attempt: kick streaming back on, then report the
		// iteration as lost. The caller skips and retries next loop.
		slog.Warn("hal: v4l2 dequeue failed, attempting stream restart", "error", err)
		streamType := uint32(v4l2BufTypeVideoCapture)
		_ = ioctl(c.fd, vidiocStreamOn, unsafe.Pointer(&streamType))
		return nil, fmt.Errorf("%w: dequeue: %v", ErrIO, err)
	}

	idx := int(buf.Index)
	c.mu.Lock()
	c.held[idx] = true
	c.mu.Unlock()

	size := int(buf.BytesUsed)
	if size == 0 || size > len(c.buffers[idx]) {
		size = len(c.buffers[idx])
	}

	return &Frame{
		Data:      c.buffers[idx][:size], // aliases the mmap'd slot
		Width:     c.width,
		Height:    c.height,
		Format:    PixelFormatRGB24,
		SizeBytes: size,
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		slot:      idx,
	}, nil
}

func (c *v4l2Camera) ReleaseFrame(f *Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidArg)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if f.slot < 0 || f.slot >= len(c.held) {
		return fmt.Errorf("%w: bad slot token %d", ErrInvalidArg, f.slot)
	}
	if !c.held[f.slot] {
		return fmt.Errorf("%w: slot %d released twice", ErrInvalidArg, f.slot)
	}

	if err := c.queueSlot(f.slot); err != nil {
		return fmt.Errorf("%w: requeue slot %d: %v", ErrIO, f.slot, err)
	}
	c.held[f.slot] = false
	return nil
}

func (c *v4l2Camera) BufferMode() BufferMode { return BufferBorrowed }

func (c *v4l2Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if c.started {
		streamType := uint32(v4l2BufTypeVideoCapture)
		_ = ioctl(c.fd, vidiocStreamOff, unsafe.Pointer(&streamType))
		c.started = false
	}
	c.unmapAll()
	return unix.Close(c.fd)
}

func (c *v4l2Camera) queueSlot(idx int) error {
	var buf v4l2Buffer
	buf.Index = uint32(idx)
	buf.Type = v4l2BufTypeVideoCapture
	buf.Memory = v4l2MemoryMmap
	return ioctl(c.fd, vidiocQBuf, unsafe.Pointer(&buf))
}

func (c *v4l2Camera) unmapAll() {
	for i, b := range c.buffers {
		if b != nil {
			_ = unix.Munmap(b)
			c.buffers[i] = nil
		}
	}
}
