package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// simCamera is a synthetic camera for tests and bench rigs without video
// hardware. It emulates either ownership mode with real slot accounting, so
// release discipline bugs reproduce off-hardware exactly as they would
// against an mmap ring.
type simCamera struct {
	width, height int
	mode          BufferMode
	slotCount     int

	mu       sync.Mutex
	started  bool
	closed   bool
	slots    [][]byte // fixed buffers, borrowed mode only
	held     []bool   // slot index -> currently grabbed
	free     chan int
	outstand int  // owned-mode grabs not yet released
	pattern  byte // uniform fill value, increments per frame
	seq      uint64
}

func openSimCamera(cfg CameraConfig) (Camera, error) {
	c := &simCamera{
		width:     cfg.Width,
		height:    cfg.Height,
		mode:      cfg.SimMode,
		slotCount: cfg.SlotCount,
		held:      make([]bool, cfg.SlotCount),
		free:      make(chan int, cfg.SlotCount),
	}

	size := cfg.Width * cfg.Height * 3
	c.slots = make([][]byte, cfg.SlotCount)
	for i := range c.slots {
		c.slots[i] = make([]byte, size)
		c.free <- i
	}
	return c, nil
}

func (c *simCamera) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: camera closed", ErrInvalidArg)
	}
	c.started = true
	return nil
}

func (c *simCamera) GrabFrame(timeout time.Duration) (*Frame, error) {
	c.mu.Lock()
	if !c.started || c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: capture not started", ErrInvalidArg)
	}
	c.pattern++
	fill := c.pattern
	c.seq++
	c.mu.Unlock()

	// Borrowed mode behaves like the hardware ring: when every slot is
	// held by the caller, the grab waits for a release, then times out.
	var idx int
	select {
	case idx = <-c.free:
	case <-time.After(timeout):
		return nil, ErrTimeout
	}

	buf := c.slots[idx]
	for i := range buf {
		buf[i] = fill
	}

	c.mu.Lock()
	c.held[idx] = true
	c.mu.Unlock()

	f := &Frame{
		Width:     c.width,
		Height:    c.height,
		Format:    PixelFormatRGB24,
		SizeBytes: len(buf),
		Timestamp: time.Now(),
		TraceID:   uuid.New().String(),
		slot:      idx,
	}

	if c.mode == BufferOwned {
		// Copying backend: fresh allocation per grab, slot returned to
		// the pool immediately (the copy is independent of it).
		f.Data = make([]byte, len(buf))
		copy(f.Data, buf)
		f.slot = -1
		c.mu.Lock()
		c.held[idx] = false
		c.outstand++
		c.mu.Unlock()
		c.free <- idx
		return f, nil
	}

	f.Data = buf
	return f, nil
}

func (c *simCamera) ReleaseFrame(f *Frame) error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidArg)
	}

	if c.mode == BufferOwned {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.outstand == 0 {
			return fmt.Errorf("%w: release without matching grab", ErrInvalidArg)
		}
		c.outstand--
		return nil
	}

	c.mu.Lock()
	if f.slot < 0 || f.slot >= c.slotCount {
		c.mu.Unlock()
		return fmt.Errorf("%w: bad slot token %d", ErrInvalidArg, f.slot)
	}
	if !c.held[f.slot] {
		c.mu.Unlock()
		return fmt.Errorf("%w: slot %d released twice", ErrInvalidArg, f.slot)
	}
	c.held[f.slot] = false
	c.mu.Unlock()

	c.free <- f.slot
	return nil
}

func (c *simCamera) BufferMode() BufferMode { return c.mode }

func (c *simCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.started = false
	return nil
}
