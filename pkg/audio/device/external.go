// ABOUTME: Backend driven by a host application that owns the audio device
// ABOUTME: The host pushes captured samples in and pulls rendered samples out
package device

import (
	"fmt"
	"sync"
)

// External backend. Embedding applications that already run an audio
// callback (game engines, tests) feed it through PushCapture and
// PullPlayback. At most one capture and one playback stream are open at a
// time.
type External struct {
	mu       sync.Mutex
	capture  *externalStream
	playback *externalStream
}

// NewExternal creates an external backend
func NewExternal() *External {
	return &External{}
}

// OpenCapture registers fn as the capture sink
func (e *External) OpenCapture(cfg Config, fn CaptureFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.capture != nil && !e.capture.isClosed() {
		return nil, fmt.Errorf("capture stream already open")
	}
	e.capture = &externalStream{cfg: cfg, capture: fn}
	return e.capture, nil
}

// OpenPlayback registers fn as the playback source
func (e *External) OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playback != nil && !e.playback.isClosed() {
		return nil, fmt.Errorf("playback stream already open")
	}
	e.playback = &externalStream{cfg: cfg, playback: fn}
	return e.playback, nil
}

// Close closes any open streams
func (e *External) Close() error {
	e.mu.Lock()
	c, p := e.capture, e.playback
	e.capture, e.playback = nil, nil
	e.mu.Unlock()

	if c != nil {
		c.Close()
	}
	if p != nil {
		p.Close()
	}
	return nil
}

// PushCapture delivers samples to the capture stream. It reports false when
// no capture stream is running.
func (e *External) PushCapture(samples []float32) bool {
	e.mu.Lock()
	s := e.capture
	e.mu.Unlock()
	if s == nil {
		return false
	}
	return s.push(samples)
}

// PullPlayback fills out from the playback stream. When no playback stream
// is running out is zeroed and false is returned.
func (e *External) PullPlayback(out []float32) bool {
	e.mu.Lock()
	s := e.playback
	e.mu.Unlock()
	clear(out)
	if s == nil {
		return false
	}
	return s.pull(out)
}

// Running reports whether the capture and playback streams are started
func (e *External) Running() (capture, playback bool) {
	e.mu.Lock()
	c, p := e.capture, e.playback
	e.mu.Unlock()
	return c != nil && c.isRunning(), p != nil && p.isRunning()
}

// externalStream holds mu across callbacks so Stop waits for them to finish
type externalStream struct {
	cfg      Config
	capture  CaptureFunc
	playback PlaybackFunc

	mu      sync.Mutex
	running bool
	closed  bool
}

func (s *externalStream) push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	defer guardCallback("capture")
	s.capture(samples)
	return true
}

func (s *externalStream) pull(out []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	defer guardCallback("playback")
	s.playback(out)
	return true
}

func (s *externalStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream closed")
	}
	s.running = true
	return nil
}

func (s *externalStream) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

func (s *externalStream) Close() error {
	s.mu.Lock()
	s.running = false
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *externalStream) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *externalStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
