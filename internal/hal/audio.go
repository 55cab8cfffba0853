package hal

import "fmt"

// Direction selects which side of the audio path a device serves.
type Direction int

const (
	DirectionCapture Direction = iota
	DirectionPlayback
)

// AudioChunk is a block of interleaved signed 16-bit PCM samples.
//
// Chunks are always caller-owned: unlike camera frames there is no borrowed
// mode, every capture hands back a fresh allocation the caller keeps.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (c *AudioChunk) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// FilterFunc transforms captured samples in place before they are handed to
// the caller. Used for noise suppression on the capture path.
type FilterFunc func(samples []int16)

// AudioDevice is the uniform PCM contract over all backends. A device is
// opened for exactly one direction.
type AudioDevice interface {
	// CaptureChunk blocks until frames sample frames have been captured and
	// returns them as a caller-owned chunk. Capture direction only.
	CaptureChunk(frames int) (*AudioChunk, error)

	// PlaybackChunk blocks until the chunk has been handed to the output
	// device. Playback direction only.
	PlaybackChunk(chunk *AudioChunk) error

	// SetCaptureFilter installs the in-place filter applied to every
	// captured chunk before CaptureChunk returns it. Nil removes the filter.
	SetCaptureFilter(f FilterFunc)

	// Close stops the stream and releases device resources.
	Close() error
}

// AudioConfig parameterizes OpenAudio.
type AudioConfig struct {
	Backend    string // gstreamer, sim
	Direction  Direction
	SampleRate int
	Channels   int
}

// OpenAudio opens a one-direction PCM device on the configured backend.
func OpenAudio(cfg AudioConfig) (AudioDevice, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrInvalidArg, cfg.SampleRate)
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrInvalidArg, cfg.Channels)
	}

	switch cfg.Backend {
	case "gstreamer":
		return openGstAudio(cfg)
	case "sim":
		return openSimAudio(cfg)
	default:
		return nil, fmt.Errorf("%w: audio backend %q", ErrNotSupported, cfg.Backend)
	}
}
