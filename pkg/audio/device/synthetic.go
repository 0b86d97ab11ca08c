// ABOUTME: Synthetic backend that generates a test tone and discards output
// ABOUTME: Drives callbacks from tickers so the pipeline runs without hardware
package device

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DefaultSyntheticPeriod is the callback period of synthetic streams
const DefaultSyntheticPeriod = 20 * time.Millisecond

// Synthetic backend. Capture streams produce a sine tone, playback streams
// render into a buffer whose peak level is recorded.
type Synthetic struct {
	Frequency float64
	Amplitude float32
	Period    time.Duration

	mu   sync.Mutex
	peak float32
}

// NewSynthetic creates a synthetic backend producing a tone at frequency Hz
func NewSynthetic(frequency float64) *Synthetic {
	return &Synthetic{
		Frequency: frequency,
		Amplitude: 0.5,
		Period:    DefaultSyntheticPeriod,
	}
}

// OpenCapture opens a tone generator
func (s *Synthetic) OpenCapture(cfg Config, fn CaptureFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	frames := s.framesPerTick(cfg)
	buf := make([]float32, frames*cfg.Channels)
	var sampleIndex uint64

	return newTickerStream(s.period(), func() {
		defer guardCallback("capture")
		for i := 0; i < frames; i++ {
			t := float64(sampleIndex+uint64(i)) / float64(cfg.SampleRate)
			v := float32(math.Sin(2*math.Pi*s.Frequency*t)) * s.Amplitude
			for c := 0; c < cfg.Channels; c++ {
				buf[i*cfg.Channels+c] = v
			}
		}
		sampleIndex += uint64(frames)
		fn(buf)
	}), nil
}

// OpenPlayback opens a sink
func (s *Synthetic) OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	buf := make([]float32, s.framesPerTick(cfg)*cfg.Channels)

	return newTickerStream(s.period(), func() {
		defer guardCallback("playback")
		clear(buf)
		fn(buf)

		var peak float32
		for _, v := range buf {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
		s.mu.Lock()
		if peak > s.peak {
			s.peak = peak
		}
		s.mu.Unlock()
	}), nil
}

// Close is a no-op; streams are closed individually
func (s *Synthetic) Close() error { return nil }

// Peak returns the largest absolute sample rendered by playback streams
func (s *Synthetic) Peak() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// ResetPeak clears the recorded peak
func (s *Synthetic) ResetPeak() {
	s.mu.Lock()
	s.peak = 0
	s.mu.Unlock()
}

func (s *Synthetic) period() time.Duration {
	if s.Period <= 0 {
		return DefaultSyntheticPeriod
	}
	return s.Period
}

func (s *Synthetic) framesPerTick(cfg Config) int {
	frames := int(int64(cfg.SampleRate) * int64(s.period()) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	return frames
}

// tickerStream runs tick on its own goroutine once per period
type tickerStream struct {
	period time.Duration
	tick   func()

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

func newTickerStream(period time.Duration, tick func()) *tickerStream {
	return &tickerStream{period: period, tick: tick}
}

func (t *tickerStream) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("synthetic stream closed")
	}
	if t.stop != nil {
		return nil
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.stop, t.done)
	return nil
}

func (t *tickerStream) run(stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *tickerStream) Stop() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

func (t *tickerStream) Close() error {
	err := t.Stop()
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return err
}
