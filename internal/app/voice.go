// ABOUTME: Voice client application orchestration
// ABOUTME: Coordinates the relay connection, the voice engine, metrics and the UI
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/internal/client"
	"github.com/Sendspin/sendspin-voice/internal/config"
	"github.com/Sendspin/sendspin-voice/internal/discovery"
	"github.com/Sendspin/sendspin-voice/internal/ui"
	"github.com/Sendspin/sendspin-voice/internal/version"
	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/protocol"
	"github.com/Sendspin/sendspin-voice/pkg/voicechat"
)

const (
	discoveryTimeout = 10 * time.Second
	statsInterval    = 250 * time.Millisecond
)

// Config holds application configuration
type Config struct {
	Voice  *config.Config
	UseTUI bool

	// Backend overrides the configured audio backend
	Backend device.Backend
}

// Voice is a running voice chat client
type Voice struct {
	config  Config
	cfg     *config.Config
	log     logrus.FieldLogger
	backend device.Backend

	client    *client.Client
	manager   *voicechat.Manager
	discovery *discovery.Manager

	registry      *prometheus.Registry
	metrics       *voicechat.Metrics
	metricsServer *http.Server

	controls *ui.Controls
	tuiProg  *tea.Program

	// last reported position per remote speaker
	posMu     sync.RWMutex
	positions map[uint32]audio.Vec3

	dropped atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a voice client
func New(c Config) *Voice {
	if c.Voice == nil {
		c.Voice = config.Default()
	}
	c.Voice.ResolveIdentity()

	backend := c.Backend
	if backend == nil {
		backend = c.Voice.Audio.NewBackend()
	}

	registry := prometheus.NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	return &Voice{
		config:    c,
		cfg:       c.Voice,
		log:       logrus.WithField("component", "app"),
		backend:   backend,
		registry:  registry,
		metrics:   voicechat.NewMetrics(registry),
		positions: make(map[uint32]audio.Vec3),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start connects to a relay and brings up the voice engine
func (v *Voice) Start(ctx context.Context) error {
	relayAddr, path, err := v.resolveRelay(ctx)
	if err != nil {
		return err
	}

	v.client = client.NewClient(client.Config{
		RelayAddr: relayAddr,
		Path:      path,
		ClientID:  v.cfg.Client.ClientID,
		Name:      v.cfg.Client.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
		AudioFormat: protocol.AudioFormat{
			Codec:      v.cfg.Audio.Codec,
			Channels:   1,
			SampleRate: audio.SampleRate,
		},
	})
	if err := v.client.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	opts := v.cfg.VoiceOptions(v.backend, v.metrics)
	opts.Logger = v.log
	v.manager = voicechat.NewManager(opts)
	if err := v.manager.Initialize(v.send); err != nil {
		v.client.Close()
		return fmt.Errorf("voice engine failed: %w", err)
	}

	v.log.WithFields(logrus.Fields{
		"relay":   relayAddr,
		"speaker": v.client.SpeakerID(),
	}).Info("Voice chat ready")

	if v.cfg.Metrics.Enabled {
		v.serveMetrics()
	}

	v.wg.Add(2)
	go v.handleVoice()
	go v.handleUpdates()

	if v.config.UseTUI {
		v.startTUI()
	}

	return nil
}

// resolveRelay returns the configured relay or the first one found via mDNS
func (v *Voice) resolveRelay(ctx context.Context) (string, string, error) {
	if v.cfg.Client.Relay != "" {
		return v.cfg.Client.Relay, v.cfg.Client.Path, nil
	}

	v.log.Info("Starting relay discovery...")
	v.discovery = discovery.NewManager(discovery.Config{ServiceName: v.cfg.Client.Name})
	v.discovery.Browse()

	waitCtx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	relay, err := v.discovery.WaitForRelay(waitCtx)
	if err != nil {
		return "", "", err
	}
	v.log.WithFields(logrus.Fields{
		"name": relay.Name,
		"addr": relay.Addr(),
	}).Info("Discovered relay")
	return relay.Addr(), relay.Path, nil
}

// send is the engine's outbound path. It runs on the audio thread, so
// every branch must stay non-blocking.
func (v *Voice) send(isTalking bool, packet []byte) {
	var err error
	if packet == nil {
		err = v.client.SendUpdate(protocol.VoiceUpdate{
			IsTalking: isTalking,
			Position:  v.cfg.Listener.ListenerPosition(),
		})
	} else {
		err = v.client.SendVoice(packet)
	}

	if errors.Is(err, client.ErrSendQueueFull) {
		v.dropped.Add(1)
		return
	}
	if err != nil {
		v.log.WithError(err).Debug("Send failed")
	}
}

// handleVoice feeds relayed packets into the engine
func (v *Voice) handleVoice() {
	defer v.wg.Done()

	listener := v.cfg.Listener.ListenerPosition()
	yaw := v.cfg.Listener.Yaw

	for {
		select {
		case dgram := <-v.client.Voice:
			v.manager.OnReceiveVoiceData(dgram.SpeakerID, dgram.Payload, v.position(dgram.SpeakerID), listener, yaw)
		case <-v.client.Done():
			return
		case <-v.ctx.Done():
			return
		}
	}
}

// handleUpdates tracks speaker positions and talk state
func (v *Voice) handleUpdates() {
	defer v.wg.Done()

	for {
		select {
		case update := <-v.client.Updates:
			if update.SpeakerID == 0 || update.SpeakerID == v.client.SpeakerID() {
				continue
			}

			v.posMu.Lock()
			if update.IsTalking {
				v.positions[update.SpeakerID] = update.Position
			} else {
				delete(v.positions, update.SpeakerID)
			}
			v.posMu.Unlock()

			if !update.IsTalking {
				v.manager.OnPlayerStoppedTalking(update.SpeakerID)
			}
		case <-v.client.Done():
			return
		case <-v.ctx.Done():
			return
		}
	}
}

// position returns the last known position; unknown speakers sit at the listener
func (v *Voice) position(speakerID uint32) audio.Vec3 {
	v.posMu.RLock()
	defer v.posMu.RUnlock()
	if pos, ok := v.positions[speakerID]; ok {
		return pos
	}
	return v.cfg.Listener.ListenerPosition()
}

// SetTalking starts or stops transmitting
func (v *Voice) SetTalking(talking bool) {
	if talking {
		v.manager.StartTalking()
	} else {
		v.manager.StopTalking()
	}
}

// Stats returns the engine state
func (v *Voice) Stats() voicechat.Stats {
	return v.manager.Stats()
}

// Dropped returns how many outbound messages were dropped on a full queue
func (v *Voice) Dropped() int64 {
	return v.dropped.Load()
}

// Done is closed when the relay connection ends
func (v *Voice) Done() <-chan struct{} {
	return v.client.Done()
}

// Quit is signalled when the user quits the TUI; nil without a TUI
func (v *Voice) Quit() <-chan ui.QuitMsg {
	if v.controls == nil {
		return nil
	}
	return v.controls.Quit
}

func (v *Voice) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(v.registry, promhttp.HandlerOpts{}))
	v.metricsServer = &http.Server{Addr: v.cfg.Metrics.Address, Handler: mux}

	go func() {
		if err := v.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			v.log.WithError(err).Warn("Metrics server failed")
		}
	}()
	v.log.WithField("addr", v.cfg.Metrics.Address).Info("Serving metrics")
}

func (v *Voice) startTUI() {
	v.controls = ui.NewControls()
	prog, err := ui.Run(v.controls)
	if err != nil {
		v.log.WithError(err).Warn("Failed to start TUI")
		return
	}
	v.tuiProg = prog

	go func() {
		if _, err := prog.Run(); err != nil {
			v.log.WithError(err).Warn("TUI exited with error")
		}
	}()

	connected := true
	prog.Send(ui.StatusMsg{
		Connected: &connected,
		RelayName: v.client.RelayName(),
		SpeakerID: v.client.SpeakerID(),
	})

	v.wg.Add(2)
	go v.handleControls()
	go v.statsLoop()
}

// handleControls applies push-to-talk requests from the TUI
func (v *Voice) handleControls() {
	defer v.wg.Done()

	for {
		select {
		case msg := <-v.controls.Talk:
			v.SetTalking(msg.Talking)
		case <-v.ctx.Done():
			return
		}
	}
}

// statsLoop periodically updates the TUI
func (v *Voice) statsLoop() {
	defer v.wg.Done()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := v.manager.Stats()
			talking := stats.Talking
			speakers := stats.Speakers
			if speakers == nil {
				speakers = []voicechat.SpeakerInfo{}
			}
			v.tuiProg.Send(ui.StatusMsg{
				Talking:        &talking,
				Speakers:       speakers,
				FramesSent:     int64(counterValue(v.metrics.FramesSent)),
				PacketsDropped: v.dropped.Load(),
			})

		case <-v.client.Done():
			disconnected := false
			v.tuiProg.Send(ui.StatusMsg{Connected: &disconnected})
			return

		case <-v.ctx.Done():
			return
		}
	}
}

// counterValue reads a counter's current value
func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// Stop says goodbye to the relay and releases everything
func (v *Voice) Stop() {
	v.cancel()

	if v.manager != nil {
		v.manager.Shutdown()
	}

	if v.client != nil {
		if v.client.IsConnected() {
			if err := v.client.SendGoodbye("shutdown"); err != nil {
				v.log.WithError(err).Debug("Goodbye not sent")
			}
			// give the writer a moment to flush the goodbye
			select {
			case <-v.client.Done():
			case <-time.After(100 * time.Millisecond):
			}
		}
		v.client.Close()
	}

	if err := v.backend.Close(); err != nil {
		v.log.WithError(err).Warn("Audio backend close failed")
	}

	if v.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		v.metricsServer.Shutdown(ctx)
	}

	if v.discovery != nil {
		v.discovery.Stop()
	}

	if v.tuiProg != nil {
		v.tuiProg.Quit()
	}

	v.wg.Wait()
}
