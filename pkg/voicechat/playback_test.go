// ABOUTME: Tests for voice playback
// ABOUTME: Checks jitter buffering, concealment, mixing and speaker eviction
package voicechat

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

var (
	here  = audio.Vec3{}
	ahead = audio.Vec3{0, 0, 10}
)

func newTestPlayback(t *testing.T, h *harness) *Playback {
	t.Helper()
	p := NewPlayback(h.opts)
	require.NoError(t, p.Initialize())
	t.Cleanup(p.Shutdown)
	return p
}

// fill delivers n packets of value b, enough to end buffering at n=15
func fill(p *Playback, speaker uint32, n int, b byte, pos audio.Vec3) {
	for i := 0; i < n; i++ {
		p.PlayVoiceData(speaker, []byte{b}, pos, here, 0)
	}
}

func TestPlaybackBuffersUntilTarget(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 14, 50, ahead)
	speakers := p.Speakers()
	require.Len(t, speakers, 1)
	assert.True(t, speakers[0].Buffering)
	assert.Equal(t, 14*audio.FrameSize, speakers[0].BufferedSamples)

	assert.True(t, silent(h.pull(320)), "buffering speaker must not be mixed")
	assert.Equal(t, 14*audio.FrameSize, p.Speakers()[0].BufferedSamples, "buffering speaker must not drain")

	fill(p, 1, 1, 50, ahead)
	assert.False(t, p.Speakers()[0].Buffering, "15th decode reaches 4800 samples")

	out := h.pull(320)
	assert.False(t, silent(out))
	assert.Equal(t, 14*audio.FrameSize, p.Speakers()[0].BufferedSamples)
}

func TestPlaybackDrainsInFIFOOrder(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	for i := 1; i <= 15; i++ {
		p.PlayVoiceData(1, []byte{byte(i)}, here, here, 0)
	}

	for i := 1; i <= 15; i++ {
		out := h.pull(audio.FrameSize)
		want := audio.Int16ToFloat(int16(i) * 100)
		assert.InDelta(t, want, out[0], 1e-6, "frame %d left", i)
		assert.InDelta(t, want, out[len(out)-1], 1e-6, "frame %d right", i)
	}
}

func TestPlaybackPartialDrain(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)
	fill(p, 1, 15, 10, here)

	// more frames requested than buffered: the tail stays silent
	out := h.pull(6000)
	assert.NotZero(t, out[2*4799])
	assert.Zero(t, out[2*4800])
	assert.Equal(t, 0, p.Speakers()[0].BufferedSamples)
}

func TestPlaybackOutOfRangeSpeakerIsSilentButDrains(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 15, 100, audio.Vec3{2000, 0, 0})
	out := h.pull(320)
	assert.True(t, silent(out))
	assert.Equal(t, 14*audio.FrameSize, p.Speakers()[0].BufferedSamples)
}

func TestPlaybackPansBySpeakerPosition(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 15, 100, audio.Vec3{-10, 0, 0})
	out := h.pull(320)
	assert.NotZero(t, out[0])
	assert.InDelta(t, 0, out[1], 1e-6)
}

func TestPlaybackSumsSpeakers(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 7, 15, 10, here)
	fill(p, 3, 15, 20, here)

	ids := []uint32{}
	for _, s := range p.Speakers() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []uint32{3, 7}, ids)

	out := h.pull(320)
	assert.InDelta(t, audio.Int16ToFloat(1000)+audio.Int16ToFloat(2000), out[0], 1e-6)
}

func TestPlaybackConcealsThenGoesSilent(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 15, 10, here)
	for i := 0; i < 15; i++ {
		h.pull(audio.FrameSize)
	}
	require.Equal(t, 0, p.Speakers()[0].BufferedSamples)
	assert.True(t, silent(h.pull(audio.FrameSize)), "no concealment before the timeout")

	h.clock.Advance(61 * time.Millisecond)

	want := audio.Int16ToFloat(concealValue)
	for i := 1; i <= 5; i++ {
		out := h.pull(audio.FrameSize)
		assert.InDelta(t, want, out[0], 1e-6, "pass %d should be concealed", i)
		assert.Equal(t, i, p.Speakers()[0].ConcealCount)
	}
	assert.Equal(t, 5, h.decoder(0).ConcealCalls())

	assert.True(t, silent(h.pull(audio.FrameSize)), "6th pass after loss must be silent")
	assert.Equal(t, 5, h.decoder(0).ConcealCalls())
	assert.Equal(t, float64(5), testutil.ToFloat64(h.metrics.ConcealedFrames))

	// a real packet resets the concealment budget and plays without rebuffering
	p.PlayVoiceData(1, []byte{20}, here, here, 0)
	assert.Equal(t, 0, p.Speakers()[0].ConcealCount)
	assert.False(t, p.Speakers()[0].Buffering)
	out := h.pull(audio.FrameSize)
	assert.InDelta(t, audio.Int16ToFloat(2000), out[0], 1e-6)
}

func TestPlaybackNoConcealmentWhileBuffering(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 3, 10, here)
	h.clock.Advance(500 * time.Millisecond)
	h.pull(audio.FrameSize)

	assert.Equal(t, 0, h.decoder(0).ConcealCalls())
	assert.Equal(t, 3*audio.FrameSize, p.Speakers()[0].BufferedSamples)
}

func TestPlaybackEvictsIdleSpeaker(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 15, 10, here)
	h.pull(4800)
	require.Len(t, p.Speakers(), 1)

	h.clock.Advance(time.Second)
	h.pull(audio.FrameSize)
	require.Len(t, p.Speakers(), 1, "exactly one second is not past the timeout")

	h.clock.Advance(time.Millisecond)
	for len(p.Speakers()) > 0 {
		// concealed frames drain before eviction can happen
		h.pull(audio.FrameSize * 8)
		if h.decoder(0).ConcealCalls() > 5 {
			t.Fatal("concealment exceeded its cap")
		}
	}
	assert.True(t, h.decoder(0).Closed())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.SpeakersRemoved.WithLabelValues(RemovedTimeout)))

	// the speaker is gone so stopping it changes nothing
	p.StopSpeaker(1)
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.SpeakersRemoved.WithLabelValues(RemovedStopped)))
}

func TestPlaybackBufferingSpeakerIsNotEvicted(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 1, 10, here)
	h.clock.Advance(5 * time.Second)
	h.pull(audio.FrameSize)
	assert.Len(t, p.Speakers(), 1)
}

func TestPlaybackStopSpeaker(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 20, 10, here)
	fill(p, 2, 1, 10, here)
	p.StopSpeaker(1)

	speakers := p.Speakers()
	require.Len(t, speakers, 1)
	assert.Equal(t, uint32(2), speakers[0].ID)
	assert.True(t, h.decoder(0).Closed())
	assert.False(t, h.decoder(1).Closed())

	// a new packet creates a fresh speaker that buffers again
	fill(p, 1, 1, 10, here)
	assert.Equal(t, 3, h.decoderCount())
	assert.True(t, p.Speakers()[0].Buffering)
}

func TestPlaybackFirstDecodeFailureLeavesNoSpeaker(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	p.PlayVoiceData(1, []byte{0xff}, ahead, here, 0)
	assert.Empty(t, p.Speakers())
	require.Equal(t, 1, h.decoderCount())
	assert.True(t, h.decoder(0).Closed())
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.DecodeFailures))
}

func TestPlaybackDecodeFailureLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	fill(p, 1, 2, 10, ahead)
	before := p.Speakers()[0]

	h.clock.Advance(40 * time.Millisecond)
	p.PlayVoiceData(1, []byte{0xff}, audio.Vec3{5, 5, 5}, here, 0)

	after := p.Speakers()[0]
	assert.Equal(t, before, after)
	assert.False(t, h.decoder(0).Closed())
}

func TestPlaybackDecoderCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.decoderErr = errFake
	p := newTestPlayback(t, h)

	p.PlayVoiceData(1, []byte{10}, here, here, 0)
	assert.Empty(t, p.Speakers())
}

func TestPlaybackListenerPoseUpdatesOnEveryCall(t *testing.T) {
	h := newHarness(t)
	p := newTestPlayback(t, h)

	// speaker to the listener's right
	fill(p, 1, 15, 100, audio.Vec3{10, 0, 0})
	// a failed decode from another speaker still turns the listener to face it
	p.PlayVoiceData(2, []byte{0xff}, here, here, float32(3.14159265/2))

	out := h.pull(audio.FrameSize)
	assert.InDelta(t, out[0], out[1], 1e-6, "speaker is now straight ahead")
}

func TestPlaybackIgnoresCallsBeforeInitialize(t *testing.T) {
	h := newHarness(t)
	p := NewPlayback(h.opts)

	p.PlayVoiceData(1, []byte{10}, here, here, 0)
	p.StopSpeaker(1)
	assert.Empty(t, p.Speakers())
	assert.Equal(t, 0, h.decoderCount())
	assert.NotPanics(t, p.Shutdown)
}

func TestPlaybackShutdownStopsDeviceBeforeDecoders(t *testing.T) {
	h := newHarness(t)
	p := NewPlayback(h.opts)
	require.NoError(t, p.Initialize())

	fill(p, 1, 1, 10, here)
	fill(p, 2, 1, 10, here)

	running := []bool{}
	for i := 0; i < 2; i++ {
		h.decoder(i).onClose = func() {
			_, playing := h.backend.Running()
			running = append(running, playing)
		}
	}

	p.Shutdown()
	assert.Equal(t, []bool{false, false}, running)
	assert.Empty(t, p.Speakers())
	assert.Equal(t, float64(0), testutil.ToFloat64(h.metrics.ActiveSpeakers))

	p.Shutdown()
}

func TestPlaybackOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.playbackErr = errFake
	p := NewPlayback(h.opts)

	assert.ErrorIs(t, p.Initialize(), errFake)
	p.PlayVoiceData(1, []byte{10}, here, here, 0)
	assert.Empty(t, p.Speakers())
}
