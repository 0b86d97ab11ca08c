// ABOUTME: Voice chat orchestrator tying capture and playback to a transport
// ABOUTME: Owns the talking state machine and forwards encoded frames while talking
package voicechat

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// SendFunc hands voice data to the transport. A nil packet announces a
// talking state change; otherwise packet is one encoded frame and
// isTalking is true. It is called from the capture device thread for
// frames and must not call back into the Manager.
type SendFunc func(isTalking bool, packet []byte)

// Stats is a snapshot of the voice chat state
type Stats struct {
	Initialized bool
	Talking     bool
	Capturing   bool
	Speakers    []SpeakerInfo
}

// Manager is the single source of truth for whether the local user is
// talking. It owns a Capture and a Playback.
type Manager struct {
	opts     Options
	log      logrus.FieldLogger
	capture  *Capture
	playback *Playback

	// mu serializes lifecycle and talking transitions; the capture
	// callback only reads the atomics
	mu          sync.Mutex
	send        SendFunc
	initialized atomic.Bool
	talking     atomic.Bool
}

// NewManager creates an uninitialized manager
func NewManager(opts Options) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:     opts,
		log:      opts.Logger.WithField("component", "voicechat"),
		capture:  NewCapture(opts),
		playback: NewPlayback(opts),
	}
}

// Initialize starts playback and then capture. If capture fails playback
// is shut down again. Initializing twice is a no-op.
func (m *Manager) Initialize(send SendFunc) error {
	if send == nil {
		m.log.Error("Cannot initialize voice chat without a send callback")
		return ErrNilCallback
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized.Load() {
		m.log.Warn("Voice chat already initialized")
		return nil
	}

	m.send = send

	if err := m.playback.Initialize(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	if err := m.capture.Initialize(m.onEncoded); err != nil {
		m.playback.Shutdown()
		return fmt.Errorf("capture: %w", err)
	}

	m.initialized.Store(true)
	m.log.Info("Voice chat initialized")
	return nil
}

// Shutdown stops talking if needed and releases capture and playback
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.talking.Load() {
		m.stopTalking()
	}

	m.capture.Shutdown()
	m.playback.Shutdown()

	if m.initialized.Swap(false) {
		m.log.Info("Voice chat shut down")
	}
}

// StartTalking announces talking and then enables capture
func (m *Manager) StartTalking() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized.Load() || m.talking.Load() {
		return
	}

	m.send(true, nil)
	m.talking.Store(true)
	m.capture.StartCapture()
	m.log.Info("Started talking")
}

// StopTalking disables capture and then announces the stop, so no frame
// follows the announcement
func (m *Manager) StopTalking() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized.Load() || !m.talking.Load() {
		return
	}
	m.stopTalking()
}

// stopTalking must hold m.mu
func (m *Manager) stopTalking() {
	m.talking.Store(false)
	// returns only after any in-flight frame has been delivered
	m.capture.StopCapture()
	m.send(false, nil)
	m.log.Info("Stopped talking")
}

// IsTalking reports the local talking state
func (m *Manager) IsTalking() bool {
	return m.talking.Load()
}

// OnReceiveVoiceData queues one received packet for playback
func (m *Manager) OnReceiveVoiceData(speakerIdx uint32, packet []byte, speakerPos, listenerPos audio.Vec3, listenerYaw float32) {
	if !m.initialized.Load() || len(packet) == 0 {
		return
	}
	m.playback.PlayVoiceData(speakerIdx, packet, speakerPos, listenerPos, listenerYaw)
}

// OnPlayerStoppedTalking drops a remote speaker
func (m *Manager) OnPlayerStoppedTalking(speakerIdx uint32) {
	if !m.initialized.Load() {
		return
	}
	m.playback.StopSpeaker(speakerIdx)
}

// Stats returns the current state
func (m *Manager) Stats() Stats {
	return Stats{
		Initialized: m.initialized.Load(),
		Talking:     m.talking.Load(),
		Capturing:   m.capture.IsCapturing(),
		Speakers:    m.playback.Speakers(),
	}
}

// onEncoded runs on the capture device thread. Frames that race with
// StopTalking are dropped here.
func (m *Manager) onEncoded(packet []byte) {
	if !m.talking.Load() || len(packet) == 0 {
		return
	}
	m.opts.Metrics.recordSent()
	m.send(true, packet)
}
