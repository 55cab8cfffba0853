package hal

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// simAudio is a synthetic PCM device for tests. Capture synthesizes a 440 Hz
// tone; playback counts and discards. Pacing is off by default so tests run
// at full speed; enable it to emulate a real-time source.
type simAudio struct {
	cfg      AudioConfig
	realtime bool

	mu       sync.Mutex
	filter   FilterFunc
	closed   bool
	phase    float64
	played   int // playback chunks accepted
}

func openSimAudio(cfg AudioConfig) (AudioDevice, error) {
	return &simAudio{cfg: cfg}, nil
}

func (a *simAudio) CaptureChunk(frames int) (*AudioChunk, error) {
	if a.cfg.Direction != DirectionCapture {
		return nil, fmt.Errorf("%w: device opened for playback", ErrInvalidArg)
	}
	if frames <= 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidArg, frames)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: device closed", ErrInvalidArg)
	}
	out := make([]int16, frames*a.cfg.Channels)
	step := 2 * math.Pi * 440.0 / float64(a.cfg.SampleRate)
	for i := 0; i < frames; i++ {
		s := int16(math.Sin(a.phase) * 0.3 * math.MaxInt16)
		a.phase += step
		for ch := 0; ch < a.cfg.Channels; ch++ {
			out[i*a.cfg.Channels+ch] = s
		}
	}
	filter := a.filter
	a.mu.Unlock()

	if a.realtime {
		time.Sleep(time.Duration(frames) * time.Second / time.Duration(a.cfg.SampleRate))
	}
	if filter != nil {
		filter(out)
	}
	return &AudioChunk{
		Samples:    out,
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
	}, nil
}

func (a *simAudio) PlaybackChunk(chunk *AudioChunk) error {
	if a.cfg.Direction != DirectionPlayback {
		return fmt.Errorf("%w: device opened for capture", ErrInvalidArg)
	}
	if chunk == nil || len(chunk.Samples) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidArg)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("%w: device closed", ErrInvalidArg)
	}
	a.played++
	return nil
}

func (a *simAudio) SetCaptureFilter(f FilterFunc) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
}

func (a *simAudio) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
