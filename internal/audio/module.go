// Package audio runs the capture and playback paths: microphone chunks are
// captured at the device rate, resampled to the pipeline rate, and handed to
// an injected consumer; playback chunks are queued and drained to the output
// device in order.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zaf/resample"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
	"github.com/wayline-dev/wayline-wearable/internal/queue"
)

// Consumer receives each captured, pipeline-rate chunk. The chunk is owned
// by the consumer; the capture loop never touches it again.
type Consumer func(chunk *hal.AudioChunk)

// Module owns the audio devices and their worker goroutines.
type Module struct {
	consumer Consumer

	enabled      bool
	capture      hal.AudioDevice
	playback     hal.AudioDevice
	chunkSamples int
	captureRate  int
	pipelineRate int
	channels     int

	playQueue *queue.Queue[*hal.AudioChunk]

	mu          sync.Mutex
	running     bool
	stop        chan struct{}
	captureDone chan struct{}
	playDone    chan struct{}
}

// NewModule builds an audio module delivering captured chunks to consumer.
// A nil consumer discards capture; playback still works.
func NewModule(consumer Consumer) *Module {
	return &Module{consumer: consumer}
}

func (m *Module) Name() string { return "audio" }

// Initialize opens both device directions. A playback failure releases the
// already-open capture device.
func (m *Module) Initialize(cfg *config.Config) error {
	m.enabled = cfg.Audio.Enabled
	if !m.enabled {
		slog.Info("audio: disabled by configuration")
		return nil
	}

	m.chunkSamples = cfg.Audio.ChunkSamples
	m.captureRate = cfg.Audio.CaptureRate
	m.pipelineRate = cfg.Audio.PipelineRate
	m.channels = cfg.Audio.Channels

	capture, err := hal.OpenAudio(hal.AudioConfig{
		Backend:    cfg.Audio.Backend,
		Direction:  hal.DirectionCapture,
		SampleRate: cfg.Audio.CaptureRate,
		Channels:   cfg.Audio.Channels,
	})
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	if cfg.Audio.NoiseFilter {
		capture.SetCaptureFilter(noiseGate)
	}

	playback, err := hal.OpenAudio(hal.AudioConfig{
		Backend:    cfg.Audio.Backend,
		Direction:  hal.DirectionPlayback,
		SampleRate: cfg.Audio.PipelineRate,
		Channels:   cfg.Audio.Channels,
	})
	if err != nil {
		_ = capture.Close()
		return fmt.Errorf("open playback device: %w", err)
	}

	m.capture = capture
	m.playback = playback
	m.playQueue = queue.New[*hal.AudioChunk]()
	return nil
}

func (m *Module) Start() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	m.running = true
	m.stop = make(chan struct{})
	m.captureDone = make(chan struct{})
	m.playDone = make(chan struct{})

	go m.captureLoop()
	go m.playbackLoop()
	return nil
}

// Stop halts capture immediately and drains queued playback before closing
// the devices: speech already queued finishes, nothing new is accepted.
// Devices opened by Initialize are closed even when Start never ran.
func (m *Module) Stop() {
	if !m.enabled {
		return
	}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		m.closeDevices()
		return
	}
	m.running = false
	close(m.stop)
	m.mu.Unlock()

	<-m.captureDone
	m.playQueue.Invalidate()
	<-m.playDone

	m.closeDevices()
}

func (m *Module) closeDevices() {
	if m.capture != nil {
		if err := m.capture.Close(); err != nil {
			slog.Warn("audio: capture close failed", "error", err)
		}
		m.capture = nil
	}
	if m.playback != nil {
		if err := m.playback.Close(); err != nil {
			slog.Warn("audio: playback close failed", "error", err)
		}
		m.playback = nil
	}
}

// Play enqueues a chunk for ordered playback. Never blocks.
func (m *Module) Play(chunk *hal.AudioChunk) error {
	if !m.enabled {
		return errors.New("audio: module disabled")
	}
	m.playQueue.Push(chunk)
	return nil
}

func (m *Module) captureLoop() {
	defer close(m.captureDone)
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		chunk, err := m.capture.CaptureChunk(m.chunkSamples)
		if err != nil {
			if errors.Is(err, hal.ErrTimeout) {
				continue
			}
			slog.Warn("audio: capture failed, skipping chunk", "error", err)
			continue
		}

		if m.consumer == nil {
			continue
		}
		if m.captureRate != m.pipelineRate {
			chunk, err = resampleChunk(chunk, m.pipelineRate)
			if err != nil {
				slog.Warn("audio: resample failed, dropping chunk", "error", err)
				continue
			}
		}
		m.consumer(chunk)
	}
}

// playbackLoop drains the queue in order. Pop returns false only after
// Invalidate with an empty backlog, so queued speech survives shutdown.
func (m *Module) playbackLoop() {
	defer close(m.playDone)
	for {
		chunk, ok := m.playQueue.Pop()
		if !ok {
			return
		}
		if err := m.playback.PlaybackChunk(chunk); err != nil {
			slog.Warn("audio: playback failed, dropping chunk", "error", err)
		}
	}
}

// resampleChunk converts a chunk to the target rate through the SoX-backed
// resampler.
func resampleChunk(chunk *hal.AudioChunk, targetRate int) (*hal.AudioChunk, error) {
	var out bytes.Buffer
	r, err := resample.New(&out, float64(chunk.SampleRate), float64(targetRate),
		chunk.Channels, resample.I16, resample.MediumQ)
	if err != nil {
		return nil, err
	}
	if _, err := r.Write(samplesToBytes(chunk.Samples)); err != nil {
		r.Close()
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}

	return &hal.AudioChunk{
		Samples:    bytesToSamples(out.Bytes()),
		SampleRate: targetRate,
		Channels:   chunk.Channels,
	}, nil
}

// noiseGate is the capture filter hook: samples below the gate threshold are
// zeroed, cheap suppression of idle hiss before the pipeline sees it.
func noiseGate(samples []int16) {
	const threshold = 250
	for i, s := range samples {
		if s > -threshold && s < threshold {
			samples[i] = 0
		}
	}
}
