package hal

// FrameGuard scopes a grabbed frame to guarantee exactly-one release while
// keeping the buffer-ownership divergence visible: Borrowed() callers must
// finish consuming Data before calling Release (or letting a defer run).
type FrameGuard struct {
	cam      Camera
	frame    *Frame
	released bool
}

// NewFrameGuard wraps a successfully grabbed frame.
func NewFrameGuard(cam Camera, f *Frame) *FrameGuard {
	return &FrameGuard{cam: cam, frame: f}
}

// Frame returns the guarded frame. Nil after Release for borrowed buffers,
// since the data is gone and touching it is a use-after-free.
func (g *FrameGuard) Frame() *Frame {
	if g.released && g.cam.BufferMode() == BufferBorrowed {
		return nil
	}
	return g.frame
}

// Borrowed reports whether the guarded data aliases a hardware slot.
func (g *FrameGuard) Borrowed() bool {
	return g.cam.BufferMode() == BufferBorrowed
}

// Release returns the buffer to the HAL. Idempotent: only the first call
// reaches the device, so a deferred Release after an explicit one is safe.
func (g *FrameGuard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	return g.cam.ReleaseFrame(g.frame)
}
