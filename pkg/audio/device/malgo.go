// ABOUTME: Malgo-based capture and playback streams using float32 samples
// ABOUTME: Uses miniaudio via malgo for both microphone input and speaker output
package device

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// Malgo backend using malgo/miniaudio. One miniaudio context is shared by
// every stream the backend opens.
type Malgo struct {
	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	streams  map[*malgoStream]struct{}
}

// NewMalgo creates a new Malgo backend. The miniaudio context is created on
// first use.
func NewMalgo() *Malgo {
	return &Malgo{streams: make(map[*malgoStream]struct{})}
}

// context returns the shared miniaudio context (must hold m.mu)
func (m *Malgo) context() (malgo.Context, error) {
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return malgo.Context{}, fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}
	return m.malgoCtx.Context, nil
}

// OpenCapture opens the default input device
func (m *Malgo) OpenCapture(cfg Config, fn CaptureFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var buf []float32
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		defer guardCallback("capture")
		buf = scratch(buf, int(frameCount)*cfg.Channels)
		n := bytesToFloat32(buf, pInputSamples)
		fn(buf[:n])
	}

	return m.open(deviceConfig, onSamples, "capture", cfg)
}

// OpenPlayback opens the default output device
func (m *Malgo) OpenPlayback(cfg Config, fn PlaybackFunc) (Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	var buf []float32
	onSamples := func(pOutputSample, pInputSamples []byte, frameCount uint32) {
		defer guardCallback("playback")
		buf = scratch(buf, int(frameCount)*cfg.Channels)
		fn(buf)
		float32ToBytes(pOutputSample, buf)
	}

	return m.open(deviceConfig, onSamples, "playback", cfg)
}

func (m *Malgo) open(deviceConfig malgo.DeviceConfig, onSamples malgo.DataProc, direction string, cfg Config) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := m.context()
	if err != nil {
		return nil, err
	}

	device, err := malgo.InitDevice(ctx, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s device: %w", direction, err)
	}

	s := &malgoStream{owner: m, device: device, direction: direction}
	m.streams[s] = struct{}{}

	log.WithFields(logrus.Fields{
		"direction":   direction,
		"sample_rate": cfg.SampleRate,
		"channels":    cfg.Channels,
	}).Info("Audio device opened (malgo/F32)")

	return s, nil
}

// Close uninitializes every stream still open and releases the context
func (m *Malgo) Close() error {
	m.mu.Lock()
	streams := make([]*malgoStream, 0, len(m.streams))
	for s := range m.streams {
		streams = append(streams, s)
	}
	m.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.WithError(err).Warn("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

func (m *Malgo) forget(s *malgoStream) {
	m.mu.Lock()
	delete(m.streams, s)
	m.mu.Unlock()
}

type malgoStream struct {
	owner     *Malgo
	direction string

	mu      sync.Mutex
	device  *malgo.Device
	started bool
}

func (s *malgoStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return fmt.Errorf("%s stream closed", s.direction)
	}
	if s.started {
		return nil
	}
	if err := s.device.Start(); err != nil {
		return fmt.Errorf("failed to start %s device: %w", s.direction, err)
	}
	s.started = true
	return nil
}

// Stop blocks until miniaudio has finished the current callback
func (s *malgoStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil || !s.started {
		return nil
	}
	s.started = false
	if err := s.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop %s device: %w", s.direction, err)
	}
	return nil
}

func (s *malgoStream) Close() error {
	s.mu.Lock()
	if s.device == nil {
		s.mu.Unlock()
		return nil
	}
	if s.started {
		if err := s.device.Stop(); err != nil {
			log.WithError(err).Warn("device stop error")
		}
		s.started = false
	}
	s.device.Uninit()
	s.device = nil
	s.mu.Unlock()

	s.owner.forget(s)
	return nil
}
