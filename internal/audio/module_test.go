package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
)

func simConfig() *config.Config {
	return &config.Config{
		Audio: config.AudioConfig{
			Enabled:      true,
			Backend:      "sim",
			CaptureRate:  16000,
			PipelineRate: 16000,
			Channels:     1,
			ChunkSamples: 160,
		},
	}
}

func TestCaptureDeliversChunksToConsumer(t *testing.T) {
	var mu sync.Mutex
	var got []*hal.AudioChunk

	m := NewModule(func(chunk *hal.AudioChunk) {
		mu.Lock()
		got = append(got, chunk)
		mu.Unlock()
	})
	if err := m.Initialize(simConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n >= 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("only %d chunks captured within deadline", n)
		case <-time.After(5 * time.Millisecond):
		}
	}
	m.Stop()

	mu.Lock()
	defer mu.Unlock()
	for i, c := range got[:3] {
		if c.Frames() != 160 {
			t.Fatalf("chunk %d: %d frames, want 160", i, c.Frames())
		}
		if c.SampleRate != 16000 {
			t.Fatalf("chunk %d: rate %d, want 16000", i, c.SampleRate)
		}
	}
}

// Scenario: shutdown with queued playback.
// 1. Queue chunks without letting the playback loop run first (stop quickly).
// 2. Stop must drain the queue before closing the device — accepted speech
//    is never cut off.
func TestStopDrainsQueuedPlayback(t *testing.T) {
	m := NewModule(nil)
	if err := m.Initialize(simConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 5; i++ {
		chunk := &hal.AudioChunk{
			Samples:    make([]int16, 160),
			SampleRate: 16000,
			Channels:   1,
		}
		if err := m.Play(chunk); err != nil {
			t.Fatalf("Play %d: %v", i, err)
		}
	}

	m.Stop()
	if n := m.playQueue.Len(); n != 0 {
		t.Fatalf("%d chunks still queued after Stop", n)
	}
}

func TestStopBeforeStartClosesDevices(t *testing.T) {
	m := NewModule(nil)
	if err := m.Initialize(simConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	m.Stop()
	if m.capture != nil || m.playback != nil {
		t.Fatal("devices must be closed by Stop without Start")
	}
	m.Stop() // and stay safe on a second call
}

func TestDisabledModuleIsInert(t *testing.T) {
	m := NewModule(nil)
	cfg := simConfig()
	cfg.Audio.Enabled = false

	if err := m.Initialize(cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := m.Play(&hal.AudioChunk{Samples: make([]int16, 4)}); err == nil {
		t.Fatal("Play on disabled module must fail")
	}
	m.Stop() // must not panic
}

func TestNoiseGateZeroesQuietSamples(t *testing.T) {
	samples := []int16{10, -200, 5000, -5000, 249, -249, 251}
	noiseGate(samples)
	want := []int16{0, 0, 5000, -5000, 0, 0, 251}
	for i := range samples {
		if samples[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestPCMRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 12345}
	out := bytesToSamples(samplesToBytes(in))
	if len(out) != len(in) {
		t.Fatalf("length: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d: got %d, want %d", i, out[i], in[i])
		}
	}
}
