// ABOUTME: Backend that takes capture and playback from different subsystems
// ABOUTME: Lets playback-only backends like oto pair with a capture backend
package device

import "errors"

// Split routes capture to one backend and playback to another
type Split struct {
	Capture  Backend
	Playback Backend
}

// NewSplit returns a backend that opens capture on capture and playback on playback
func NewSplit(capture, playback Backend) *Split {
	return &Split{Capture: capture, Playback: playback}
}

func (s *Split) OpenCapture(cfg Config, fn CaptureFunc) (Stream, error) {
	return s.Capture.OpenCapture(cfg, fn)
}

func (s *Split) OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error) {
	return s.Playback.OpenPlayback(cfg, fn)
}

// Close closes both backends, once each when they are the same value
func (s *Split) Close() error {
	err := s.Playback.Close()
	if s.Capture != s.Playback {
		err = errors.Join(err, s.Capture.Close())
	}
	return err
}
