// ABOUTME: Oto-based playback stream pulling float32 samples from a callback
// ABOUTME: Oto has no capture support and allows one context per process
package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

// Oto playback-only backend
type Oto struct {
	mu         sync.Mutex
	otoCtx     *oto.Context
	sampleRate int
	channels   int
}

// NewOto creates a new Oto backend
func NewOto() *Oto {
	return &Oto{}
}

// OpenCapture is not available on oto
func (o *Oto) OpenCapture(Config, CaptureFunc) (Stream, error) {
	return nil, ErrUnsupported
}

// OpenPlayback creates a player that pulls samples from fn
func (o *Oto) OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	// oto only allows one context per process, so the format is fixed by the
	// first stream
	if o.otoCtx != nil && (o.sampleRate != cfg.SampleRate || o.channels != cfg.Channels) {
		return nil, fmt.Errorf("oto context already running at %dHz %dch, cannot open %dHz %dch",
			o.sampleRate, o.channels, cfg.SampleRate, cfg.Channels)
	}

	if o.otoCtx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   40 * time.Millisecond,
		}

		ctx, readyChan, err := oto.NewContext(op)
		if err != nil {
			return nil, fmt.Errorf("failed to create oto context: %w", err)
		}
		<-readyChan

		o.otoCtx = ctx
		o.sampleRate = cfg.SampleRate
		o.channels = cfg.Channels
	}

	reader := &pullReader{fn: fn, channels: cfg.Channels}
	s := &otoStream{reader: reader, player: o.otoCtx.NewPlayer(reader)}

	log.WithFields(logrus.Fields{
		"direction":   "playback",
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
	}).Info("Audio device opened (oto/F32)")

	return s, nil
}

// Close suspends the shared context
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.otoCtx != nil {
		return o.otoCtx.Suspend()
	}
	return nil
}

// pullReader adapts a PlaybackFunc to the io.Reader oto consumes
type pullReader struct {
	fn       PlaybackFunc
	channels int

	mu     sync.Mutex
	active bool
	buf    []float32
}

func (r *pullReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / (4 * r.channels)
	if frames == 0 {
		return 0, nil
	}
	n := frames * r.channels

	r.buf = scratch(r.buf, n)
	if r.active {
		func() {
			defer guardCallback("playback")
			r.fn(r.buf)
		}()
	}
	return float32ToBytes(p[:n*4], r.buf) * 4, nil
}

func (r *pullReader) setActive(active bool) {
	r.mu.Lock()
	r.active = active
	r.mu.Unlock()
}

type otoStream struct {
	reader *pullReader
	player *oto.Player
	closed bool
}

func (s *otoStream) Start() error {
	if s.closed {
		return fmt.Errorf("playback stream closed")
	}
	s.reader.setActive(true)
	s.player.Play()
	return nil
}

// Stop waits for any in-flight Read because setActive takes the reader lock
func (s *otoStream) Stop() error {
	if s.closed {
		return nil
	}
	s.player.Pause()
	s.reader.setActive(false)
	return nil
}

func (s *otoStream) Close() error {
	if s.closed {
		return nil
	}
	s.reader.setActive(false)
	s.closed = true
	return s.player.Close()
}
