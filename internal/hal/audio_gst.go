package hal

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// gstAudio is a one-direction PCM device over GStreamer. Capture accumulates
// appsink samples into an internal buffer that CaptureChunk slices chunks
// from; playback pushes chunks into an appsrc feeding the default output.
type gstAudio struct {
	cfg      AudioConfig
	pipeline *gst.Pipeline
	appsink  *app.Sink
	appsrc   *app.Source

	mu        sync.Mutex
	cond      *sync.Cond
	pending   []int16 // captured samples not yet handed out
	filter    FilterFunc
	closed    bool
	recovered atomic.Bool // one pipeline restart allowed per stall
}

func openGstAudio(cfg AudioConfig) (AudioDevice, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	a := &gstAudio{cfg: cfg}
	a.cond = sync.NewCond(&a.mu)

	var err error
	if cfg.Direction == DirectionCapture {
		err = a.buildCapture()
	} else {
		err = a.buildPlayback()
	}
	if err != nil {
		return nil, err
	}

	if err := a.pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("%w: failed to start audio pipeline: %v", ErrIO, err)
	}
	return a, nil
}

func (a *gstAudio) buildCapture() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("%w: failed to create pipeline: %v", ErrIO, err)
	}

	src, err := gst.NewElement("autoaudiosrc")
	if err != nil {
		return fmt.Errorf("%w: autoaudiosrc unavailable: %v", ErrNotSupported, err)
	}
	converter, err := gst.NewElement("audioconvert")
	if err != nil {
		return fmt.Errorf("%w: audioconvert unavailable: %v", ErrNotSupported, err)
	}
	resampler, err := gst.NewElement("audioresample")
	if err != nil {
		return fmt.Errorf("%w: audioresample unavailable: %v", ErrNotSupported, err)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return fmt.Errorf("%w: capsfilter unavailable: %v", ErrNotSupported, err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(audioCaps(a.cfg.SampleRate, a.cfg.Channels)))

	appsink, err := app.NewAppSink()
	if err != nil {
		return fmt.Errorf("%w: appsink unavailable: %v", ErrNotSupported, err)
	}
	appsink.SetProperty("sync", false)

	pipeline.AddMany(src, converter, resampler, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, resampler, capsfilter, appsink.Element); err != nil {
		return fmt.Errorf("%w: failed to link audio capture pipeline: %v", ErrIO, err)
	}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: a.onNewSample,
	})

	a.pipeline = pipeline
	a.appsink = appsink
	return nil
}

func (a *gstAudio) buildPlayback() error {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("%w: failed to create pipeline: %v", ErrIO, err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("%w: appsrc unavailable: %v", ErrNotSupported, err)
	}
	appsrc.SetProperty("block", true) // PushBuffer provides the backpressure
	appsrc.SetProperty("is-live", true)
	appsrc.SetProperty("format", int(gst.FormatTime))
	appsrc.SetCaps(gst.NewCapsFromString(audioCaps(a.cfg.SampleRate, a.cfg.Channels)))

	converter, err := gst.NewElement("audioconvert")
	if err != nil {
		return fmt.Errorf("%w: audioconvert unavailable: %v", ErrNotSupported, err)
	}
	resampler, err := gst.NewElement("audioresample")
	if err != nil {
		return fmt.Errorf("%w: audioresample unavailable: %v", ErrNotSupported, err)
	}
	sink, err := gst.NewElement("autoaudiosink")
	if err != nil {
		return fmt.Errorf("%w: autoaudiosink unavailable: %v", ErrNotSupported, err)
	}

	pipeline.AddMany(appsrc.Element, converter, resampler, sink)
	if err := gst.ElementLinkMany(appsrc.Element, converter, resampler, sink); err != nil {
		return fmt.Errorf("%w: failed to link audio playback pipeline: %v", ErrIO, err)
	}

	a.pipeline = pipeline
	a.appsrc = appsrc
	return nil
}

// onNewSample decodes S16LE bytes into the pending buffer and wakes a blocked
// CaptureChunk. Per-sample failures skip; they never kill the stream.
func (a *gstAudio) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()

	samples := bytesToSamples(data)
	buffer.Unmap()
	if len(samples) == 0 {
		return gst.FlowOK
	}

	a.mu.Lock()
	a.pending = append(a.pending, samples...)
	a.mu.Unlock()
	a.cond.Broadcast()
	return gst.FlowOK
}

func (a *gstAudio) CaptureChunk(frames int) (*AudioChunk, error) {
	if a.cfg.Direction != DirectionCapture {
		return nil, fmt.Errorf("%w: device opened for playback", ErrInvalidArg)
	}
	if frames <= 0 {
		return nil, fmt.Errorf("%w: %d frames", ErrInvalidArg, frames)
	}
	want := frames * a.cfg.Channels

	// Watchdog: a capture that produces nothing for 2s has stalled. One
	// pipeline bounce per stall, then report ErrIO.
	deadline := time.AfterFunc(2*time.Second, func() { a.cond.Broadcast() })
	defer deadline.Stop()
	start := time.Now()

	a.mu.Lock()
	for len(a.pending) < want && !a.closed {
		if time.Since(start) >= 2*time.Second {
			a.mu.Unlock()
			if a.recovered.CompareAndSwap(false, true) {
				slog.Warn("hal: audio capture stalled, restarting pipeline")
				_ = a.pipeline.SetState(gst.StateNull)
				_ = a.pipeline.SetState(gst.StatePlaying)
				return nil, ErrTimeout
			}
			return nil, fmt.Errorf("%w: audio capture stalled", ErrIO)
		}
		a.cond.Wait()
	}
	if a.closed {
		a.mu.Unlock()
		return nil, fmt.Errorf("%w: device closed", ErrInvalidArg)
	}

	out := make([]int16, want)
	copy(out, a.pending[:want])
	a.pending = a.pending[want:]
	filter := a.filter
	a.mu.Unlock()

	a.recovered.Store(false)
	if filter != nil {
		filter(out)
	}
	return &AudioChunk{
		Samples:    out,
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
	}, nil
}

func (a *gstAudio) PlaybackChunk(chunk *AudioChunk) error {
	if a.cfg.Direction != DirectionPlayback {
		return fmt.Errorf("%w: device opened for capture", ErrInvalidArg)
	}
	if chunk == nil || len(chunk.Samples) == 0 {
		return fmt.Errorf("%w: empty chunk", ErrInvalidArg)
	}

	buf := gst.NewBufferFromBytes(samplesToBytes(chunk.Samples))
	if ret := a.appsrc.PushBuffer(buf); ret != gst.FlowOK {
		return fmt.Errorf("%w: push buffer: %s", ErrIO, ret)
	}
	return nil
}

func (a *gstAudio) SetCaptureFilter(f FilterFunc) {
	a.mu.Lock()
	a.filter = f
	a.mu.Unlock()
}

func (a *gstAudio) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()
	a.cond.Broadcast()

	if a.appsrc != nil {
		a.appsrc.EndStream()
	}
	if err := a.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("%w: failed to stop pipeline: %v", ErrIO, err)
	}
	return nil
}

func audioCaps(rate, channels int) string {
	return fmt.Sprintf(
		"audio/x-raw,format=S16LE,layout=interleaved,rate=%d,channels=%d",
		rate, channels,
	)
}

func bytesToSamples(data []byte) []int16 {
	n := len(data) / 2
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

func samplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
