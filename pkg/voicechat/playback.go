// ABOUTME: Remote voice playback with jitter buffering, concealment and 3D mixing
// ABOUTME: Decodes per-speaker packets and mixes active speakers into a stereo stream
package voicechat

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
)

// Playback owns the output stream and one decoder per remote speaker
type Playback struct {
	opts Options
	log  logrus.FieldLogger

	// lifecycle serializes Initialize and Shutdown; never taken by callbacks
	lifecycle sync.Mutex

	mu          sync.Mutex
	initialized bool
	stream      device.Stream
	speakers    map[uint32]*speaker
	order       []uint32 // ascending speaker ids
	listenerPos audio.Vec3
	listenerYaw float32
	scratch     []float32
	removals    []uint32
}

// NewPlayback creates an uninitialized playback
func NewPlayback(opts Options) *Playback {
	opts = opts.withDefaults()
	return &Playback{
		opts:     opts,
		log:      opts.Logger.WithField("component", "playback"),
		speakers: make(map[uint32]*speaker),
	}
}

// Initialize opens and starts the stereo output stream. Initializing twice
// is a no-op.
func (p *Playback) Initialize() error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if initialized {
		p.log.Warn("Playback already initialized")
		return nil
	}

	stream, err := p.opts.Backend.OpenPlayback(device.Config{
		SampleRate: audio.SampleRate,
		Channels:   2,
	}, p.mix)
	if err != nil {
		p.log.WithError(err).Error("Failed to open playback device")
		return fmt.Errorf("failed to open playback device: %w", err)
	}

	p.mu.Lock()
	p.stream = stream
	p.initialized = true
	p.mu.Unlock()

	if err := stream.Start(); err != nil {
		p.log.WithError(err).Error("Failed to start playback device")
		p.release()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"sample_rate":   audio.SampleRate,
		"target_buffer": p.opts.Jitter.TargetBufferSamples,
		"max_distance":  p.opts.MaxVoiceDistance,
	}).Info("Playback initialized")
	return nil
}

// PlayVoiceData decodes one packet from speakerIdx into its jitter buffer
// and records the listener pose for mixing
func (p *Playback) PlayVoiceData(speakerIdx uint32, packet []byte, speakerPos, listenerPos audio.Vec3, listenerYaw float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return
	}

	p.listenerPos = listenerPos
	p.listenerYaw = listenerYaw

	if len(packet) == 0 {
		return
	}

	log := p.log.WithField("speaker", speakerIdx)

	s, exists := p.speakers[speakerIdx]
	if !exists {
		decoder, err := p.opts.NewDecoder()
		if err != nil {
			log.WithError(err).Error("Failed to create decoder")
			return
		}
		s = newSpeaker(speakerIdx, decoder, p.opts.Jitter)
	}

	pcm, err := s.decoder.Decode(packet)
	if err != nil {
		p.opts.Metrics.recordDecodeFailure()
		log.WithError(err).Warn("Failed to decode voice packet")
		if !exists {
			s.decoder.Close()
		}
		return
	}
	p.opts.Metrics.recordDecoded()

	if !exists {
		p.addSpeaker(s)
		log.Info("Speaker active")
	}

	s.position = speakerPos
	s.lastPacket = p.opts.Clock.Now()
	s.concealCount = 0
	p.scratch = s.appendPCM(pcm, p.scratch)

	if s.buffering && s.buffer.Len() >= s.targetSamples {
		s.buffering = false
		log.WithField("buffered", s.buffer.Len()).Debug("Jitter buffer filled, starting playback")
	}
}

// StopSpeaker drops a speaker and its buffered audio immediately
func (p *Playback) StopSpeaker(speakerIdx uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.speakers[speakerIdx]; ok {
		p.removeSpeaker(speakerIdx, RemovedStopped)
	}
}

// Speakers returns a snapshot of the active speakers in ascending id order
func (p *Playback) Speakers() []SpeakerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]SpeakerInfo, 0, len(p.order))
	for _, id := range p.order {
		infos = append(infos, p.speakers[id].info())
	}
	return infos
}

// Shutdown stops the output stream and then releases every decoder. Safe
// to call repeatedly or without Initialize.
func (p *Playback) Shutdown() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.release()
}

// release must hold p.lifecycle
func (p *Playback) release() {
	p.mu.Lock()
	stream := p.stream
	p.stream = nil
	p.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			p.log.WithError(err).Warn("Failed to stop playback device")
		}
		if err := stream.Close(); err != nil {
			p.log.WithError(err).Warn("Failed to close playback device")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	wasInitialized := p.initialized
	for len(p.order) > 0 {
		p.removeSpeaker(p.order[0], RemovedShutdown)
	}
	p.initialized = false

	if wasInitialized {
		p.log.Info("Playback shut down")
	}
}

// mix runs on the playback device thread. out holds interleaved stereo
// samples and arrives zeroed.
func (p *Playback) mix(out []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.opts.Metrics.recordMixPass()

	frames := len(out) / 2
	now := p.opts.Clock.Now()
	jitter := p.opts.Jitter
	p.removals = p.removals[:0]

	for _, id := range p.order {
		s := p.speakers[id]
		silence := now.Sub(s.lastPacket)

		if silence > jitter.ConcealTimeout && s.concealCount < jitter.MaxConcealFrames && !s.buffering {
			p.conceal(s)
		}

		if s.buffering {
			continue
		}

		params := Spatialize(s.position, p.listenerPos, p.listenerYaw, p.opts.MaxVoiceDistance)
		left := params.Volume * params.Left
		right := params.Volume * params.Right

		samples := s.buffer.Peek(frames)
		for i, v := range samples {
			out[i*2] += v * left
			out[i*2+1] += v * right
		}
		s.buffer.Discard(len(samples))

		if s.buffer.Len() == 0 && silence > jitter.EvictTimeout {
			p.removals = append(p.removals, id)
		}
	}

	for _, id := range p.removals {
		p.removeSpeaker(id, RemovedTimeout)
	}
}

// conceal synthesizes one frame for a speaker whose packets stopped arriving
func (p *Playback) conceal(s *speaker) {
	pcm, err := s.decoder.Conceal(audio.FrameSize)
	if err != nil {
		p.log.WithError(err).WithField("speaker", s.id).Warn("Loss concealment failed")
		return
	}
	p.scratch = s.appendPCM(pcm, p.scratch)
	s.concealCount++
	p.opts.Metrics.recordConcealed()
	p.log.WithFields(logrus.Fields{
		"speaker":     s.id,
		"consecutive": s.concealCount,
	}).Debug("Concealed lost frame")
}

// addSpeaker must hold p.mu
func (p *Playback) addSpeaker(s *speaker) {
	p.speakers[s.id] = s
	i := sort.Search(len(p.order), func(i int) bool { return p.order[i] >= s.id })
	p.order = append(p.order, 0)
	copy(p.order[i+1:], p.order[i:])
	p.order[i] = s.id
	p.opts.Metrics.recordSpeakerCreated(len(p.speakers))
}

// removeSpeaker must hold p.mu
func (p *Playback) removeSpeaker(id uint32, reason string) {
	s, ok := p.speakers[id]
	if !ok {
		return
	}
	if err := s.decoder.Close(); err != nil {
		p.log.WithError(err).WithField("speaker", id).Warn("Failed to close decoder")
	}
	delete(p.speakers, id)

	i := sort.Search(len(p.order), func(i int) bool { return p.order[i] >= id })
	if i < len(p.order) && p.order[i] == id {
		p.order = append(p.order[:i], p.order[i+1:]...)
	}

	p.opts.Metrics.recordSpeakerRemoved(reason, len(p.speakers))
	p.log.WithFields(logrus.Fields{
		"speaker": id,
		"reason":  reason,
	}).Info("Speaker removed")
}
