// ABOUTME: Audio device capability definition
// ABOUTME: Backends open capture and playback streams driven by periodic callbacks
package device

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrUnsupported is returned by backends that cannot open a stream direction
var ErrUnsupported = errors.New("stream direction not supported by backend")

// Config describes a stream format. Samples are always float32.
type Config struct {
	SampleRate int
	Channels   int
}

// Validate checks the config is usable
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", c.SampleRate)
	}
	if c.Channels < 1 || c.Channels > 2 {
		return fmt.Errorf("invalid channel count: %d (supported: 1, 2)", c.Channels)
	}
	return nil
}

// CaptureFunc receives interleaved input samples. The slice is only valid
// for the duration of the call.
type CaptureFunc func(samples []float32)

// PlaybackFunc fills interleaved output samples; len(out) is frames*channels.
// The slice arrives zeroed.
type PlaybackFunc func(out []float32)

// Stream is an opened device stream
type Stream interface {
	// Start begins callbacks
	Start() error

	// Stop halts callbacks. It returns only once no callback is running.
	Stop() error

	// Close releases the stream; the stream cannot be restarted
	Close() error
}

// Backend opens streams on some audio subsystem
type Backend interface {
	OpenCapture(cfg Config, fn CaptureFunc) (Stream, error)
	OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error)
	Close() error
}

var log = logrus.WithField("component", "device")

// guardCallback keeps a panic in pipeline code from unwinding into the
// audio subsystem's thread
func guardCallback(direction string) {
	if r := recover(); r != nil {
		log.WithFields(logrus.Fields{
			"direction": direction,
			"panic":     r,
		}).Error("Audio callback panicked")
	}
}
