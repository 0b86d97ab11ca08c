// ABOUTME: Microphone capture and voice frame encoding
// ABOUTME: Accumulates device samples into 20ms frames and encodes them while capturing
package voicechat

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/audio/encode"
)

// Capture owns the input stream and the encoder. The input stream runs for
// the whole lifetime of an initialized Capture; StartCapture and
// StopCapture only gate whether its samples are encoded.
type Capture struct {
	opts Options
	log  logrus.FieldLogger

	// lifecycle serializes Initialize and Shutdown; never taken by callbacks
	lifecycle sync.Mutex

	mu          sync.Mutex
	initialized bool
	capturing   bool
	encoder     encode.Encoder
	stream      device.Stream
	onEncoded   func(packet []byte)
	buffer      *audio.Ring
	pcm         []int16
}

// NewCapture creates an uninitialized capture
func NewCapture(opts Options) *Capture {
	opts = opts.withDefaults()
	return &Capture{
		opts:   opts,
		log:    opts.Logger.WithField("component", "capture"),
		buffer: audio.NewRing(audio.FrameSize * 4),
		pcm:    make([]int16, audio.FrameSize),
	}
}

// Initialize creates the encoder and starts the input stream. onEncoded is
// called from the device thread for every non-empty encoded frame while
// capturing; it must not call back into the Capture. Initializing twice is
// a no-op.
func (c *Capture) Initialize(onEncoded func(packet []byte)) error {
	if onEncoded == nil {
		c.log.Error("Cannot initialize capture without a callback")
		return ErrNilCallback
	}

	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	initialized := c.initialized
	c.mu.Unlock()
	if initialized {
		c.log.Warn("Capture already initialized")
		return nil
	}

	encoder, err := c.opts.NewEncoder()
	if err != nil {
		c.log.WithError(err).Error("Failed to create encoder")
		return fmt.Errorf("failed to create encoder: %w", err)
	}

	stream, err := c.opts.Backend.OpenCapture(device.Config{
		SampleRate: audio.SampleRate,
		Channels:   1,
	}, c.onSamples)
	if err != nil {
		encoder.Close()
		c.log.WithError(err).Error("Failed to open capture device")
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	c.mu.Lock()
	c.encoder = encoder
	c.stream = stream
	c.onEncoded = onEncoded
	c.capturing = false
	c.buffer.Reset()
	c.initialized = true
	c.mu.Unlock()

	if err := stream.Start(); err != nil {
		c.log.WithError(err).Error("Failed to start capture device")
		c.release()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"sample_rate": audio.SampleRate,
		"frame_size":  audio.FrameSize,
		"codec":       c.opts.Codec,
	}).Info("Capture initialized")
	return nil
}

// StartCapture begins encoding captured audio from a clean buffer
func (c *Capture) StartCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		c.log.Warn("StartCapture called before Initialize")
		return
	}
	c.capturing = true
	c.buffer.Reset()
}

// StopCapture stops encoding and drops any partial frame. When it returns
// no capture callback is still delivering a frame.
func (c *Capture) StopCapture() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		c.log.Warn("StopCapture called before Initialize")
		return
	}
	c.capturing = false
	c.buffer.Reset()
}

// IsCapturing reports whether captured audio is being encoded
func (c *Capture) IsCapturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capturing
}

// Shutdown stops the input stream and then releases the encoder. Safe to
// call repeatedly or without Initialize.
func (c *Capture) Shutdown() {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	c.release()
}

// release must hold c.lifecycle
func (c *Capture) release() {
	c.mu.Lock()
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	// The stream stops outside c.mu: an in-flight callback needs it to finish
	if stream != nil {
		if err := stream.Stop(); err != nil {
			c.log.WithError(err).Warn("Failed to stop capture device")
		}
		if err := stream.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close capture device")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wasInitialized := c.initialized
	if c.encoder != nil {
		if err := c.encoder.Close(); err != nil {
			c.log.WithError(err).Warn("Failed to close encoder")
		}
		c.encoder = nil
	}
	c.onEncoded = nil
	c.capturing = false
	c.initialized = false
	c.buffer.Reset()

	if wasInitialized {
		c.log.Info("Capture shut down")
	}
}

// onSamples runs on the capture device thread
func (c *Capture) onSamples(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing || c.encoder == nil {
		return
	}

	c.buffer.Write(samples)

	for c.buffer.Len() >= audio.FrameSize {
		audio.FloatsToInt16(c.pcm, c.buffer.Peek(audio.FrameSize))
		c.buffer.Discard(audio.FrameSize)

		packet, err := c.encoder.Encode(c.pcm)
		if err != nil {
			c.opts.Metrics.recordEncodeFailure()
			c.log.WithError(err).Warn("Failed to encode frame")
			continue
		}
		c.opts.Metrics.recordEncoded()

		if len(packet) > 0 {
			c.onEncoded(packet)
		}
	}
}
