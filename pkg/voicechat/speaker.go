// ABOUTME: Per-speaker decode and jitter buffer state
// ABOUTME: Tracks buffered audio, position and packet loss for one remote speaker
package voicechat

import (
	"time"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/decode"
)

// speaker is owned by Playback and only touched under its mutex
type speaker struct {
	id       uint32
	decoder  decode.Decoder
	buffer   *audio.Ring
	position audio.Vec3

	targetSamples int
	minSamples    int
	buffering     bool

	concealCount int
	lastPacket   time.Time
}

func newSpeaker(id uint32, decoder decode.Decoder, jitter JitterConfig) *speaker {
	return &speaker{
		id:            id,
		decoder:       decoder,
		buffer:        audio.NewRing(jitter.TargetBufferSamples + audio.FrameSize),
		targetSamples: jitter.TargetBufferSamples,
		minSamples:    jitter.MinBufferSamples,
		buffering:     true,
	}
}

// appendPCM converts decoded samples and queues them, using scratch for the conversion
func (s *speaker) appendPCM(pcm []int16, scratch []float32) []float32 {
	if cap(scratch) < len(pcm) {
		scratch = make([]float32, len(pcm))
	}
	scratch = scratch[:len(pcm)]
	audio.Int16sToFloat(scratch, pcm)
	s.buffer.Write(scratch)
	return scratch
}

// SpeakerInfo is a snapshot of one active speaker
type SpeakerInfo struct {
	ID              uint32
	Position        audio.Vec3
	Buffering       bool
	BufferedSamples int
	ConcealCount    int
	LastPacket      time.Time
}

func (s *speaker) info() SpeakerInfo {
	return SpeakerInfo{
		ID:              s.id,
		Position:        s.position,
		Buffering:       s.buffering,
		BufferedSamples: s.buffer.Len(),
		ConcealCount:    s.concealCount,
		LastPacket:      s.lastPacket,
	}
}
