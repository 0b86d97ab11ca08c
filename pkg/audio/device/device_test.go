// ABOUTME: Tests for audio device backends
// ABOUTME: Exercises the external, synthetic, split and oto backends
package device

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{SampleRate: 16000, Channels: 1}.Validate())
	assert.NoError(t, Config{SampleRate: 16000, Channels: 2}.Validate())
	assert.Error(t, Config{SampleRate: 0, Channels: 1}.Validate())
	assert.Error(t, Config{SampleRate: 16000, Channels: 3}.Validate())
}

func TestFloat32ByteConversion(t *testing.T) {
	in := []float32{0, 0.5, -0.25, 1, -1}
	raw := make([]byte, len(in)*4)
	require.Equal(t, len(in), float32ToBytes(raw, in))

	out := make([]float32, len(in))
	require.Equal(t, len(in), bytesToFloat32(out, raw))
	assert.Equal(t, in, out)
}

func TestScratchClearsReusedBuffer(t *testing.T) {
	buf := scratch(nil, 4)
	buf[0] = 1
	buf = scratch(buf, 3)
	assert.Len(t, buf, 3)
	assert.Equal(t, float32(0), buf[0])
}

func TestExternalDeliversOnlyWhileRunning(t *testing.T) {
	ext := NewExternal()
	var got int
	stream, err := ext.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func(s []float32) {
		got += len(s)
	})
	require.NoError(t, err)

	assert.False(t, ext.PushCapture(make([]float32, 10)))
	require.NoError(t, stream.Start())
	assert.True(t, ext.PushCapture(make([]float32, 10)))
	require.NoError(t, stream.Stop())
	assert.False(t, ext.PushCapture(make([]float32, 10)))
	assert.Equal(t, 10, got)
}

func TestExternalPlaybackZeroesWhenIdle(t *testing.T) {
	ext := NewExternal()
	stream, err := ext.OpenPlayback(Config{SampleRate: 16000, Channels: 2}, func(out []float32) {
		for i := range out {
			out[i] = 0.5
		}
	})
	require.NoError(t, err)

	out := []float32{9, 9}
	assert.False(t, ext.PullPlayback(out))
	assert.Equal(t, []float32{0, 0}, out)

	require.NoError(t, stream.Start())
	assert.True(t, ext.PullPlayback(out))
	assert.Equal(t, []float32{0.5, 0.5}, out)
}

func TestExternalRejectsSecondStream(t *testing.T) {
	ext := NewExternal()
	cfg := Config{SampleRate: 16000, Channels: 1}
	first, err := ext.OpenCapture(cfg, func([]float32) {})
	require.NoError(t, err)

	_, err = ext.OpenCapture(cfg, func([]float32) {})
	assert.Error(t, err)

	require.NoError(t, first.Close())
	_, err = ext.OpenCapture(cfg, func([]float32) {})
	assert.NoError(t, err)
}

func TestExternalRecoversCallbackPanic(t *testing.T) {
	ext := NewExternal()
	stream, err := ext.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {
		panic("boom")
	})
	require.NoError(t, err)
	require.NoError(t, stream.Start())

	assert.NotPanics(t, func() { ext.PushCapture([]float32{1}) })
	// the stream lock must have been released
	require.NoError(t, stream.Stop())
}

func TestSyntheticCaptureProducesTone(t *testing.T) {
	synth := NewSynthetic(440)
	synth.Period = 5 * time.Millisecond

	var frames atomic.Int64
	var peakBits atomic.Uint32
	stream, err := synth.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func(s []float32) {
		frames.Add(int64(len(s)))
		for _, v := range s {
			if v > 0.4 {
				peakBits.Store(1)
			}
		}
	})
	require.NoError(t, err)
	require.NoError(t, stream.Start())

	assert.Eventually(t, func() bool { return frames.Load() >= 800 }, time.Second, time.Millisecond)
	require.NoError(t, stream.Close())

	after := frames.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, frames.Load(), "callbacks must not run after Stop returns")
	assert.Equal(t, uint32(1), peakBits.Load())
}

func TestSyntheticPlaybackRecordsPeak(t *testing.T) {
	synth := NewSynthetic(440)
	synth.Period = 5 * time.Millisecond

	stream, err := synth.OpenPlayback(Config{SampleRate: 16000, Channels: 2}, func(out []float32) {
		out[0] = -0.75
	})
	require.NoError(t, err)
	require.NoError(t, stream.Start())

	assert.Eventually(t, func() bool { return synth.Peak() == 0.75 }, time.Second, time.Millisecond)
	require.NoError(t, stream.Stop())

	synth.ResetPeak()
	assert.Equal(t, float32(0), synth.Peak())
}

func TestOtoCaptureUnsupported(t *testing.T) {
	_, err := NewOto().OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestSplitRoutesDirections(t *testing.T) {
	capture, playback := NewExternal(), NewExternal()
	split := NewSplit(capture, playback)

	_, err := split.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {})
	require.NoError(t, err)
	_, err = split.OpenPlayback(Config{SampleRate: 16000, Channels: 2}, func([]float32) {})
	require.NoError(t, err)

	// each backend got exactly one direction
	_, err = capture.OpenPlayback(Config{SampleRate: 16000, Channels: 2}, func([]float32) {})
	assert.NoError(t, err)
	_, err = playback.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {})
	assert.NoError(t, err)

	assert.NoError(t, split.Close())
}

func TestSplitCaptureBypassesPlaybackOnlyBackend(t *testing.T) {
	split := NewSplit(NewExternal(), NewOto())
	_, err := split.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {})
	assert.NoError(t, err)
}

func stereoPCM(values ...int16) []byte {
	buf := make([]byte, 0, len(values)*4)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(v))
	}
	return buf
}

func TestStereoResamplerDownmixesAndDecimates(t *testing.T) {
	var values []int16
	for i := int16(0); i < 40; i++ {
		values = append(values, i*100)
	}
	rs := newStereoResampler(bytes.NewReader(stereoPCM(values...)), 32000, 16000)

	out := make([]float32, 10)
	require.NoError(t, rs.fill(out, 1))
	for i, v := range out {
		assert.InDelta(t, float32(i*200)/32768, v, 1e-6, "sample %d", i)
	}
}

func TestStereoResamplerDuplicatesChannels(t *testing.T) {
	rs := newStereoResampler(bytes.NewReader(stereoPCM(16384, 16384, 16384, 16384)), 16000, 16000)

	out := make([]float32, 4)
	require.NoError(t, rs.fill(out, 2))
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, out)
}

func TestStereoResamplerReportsEOF(t *testing.T) {
	rs := newStereoResampler(bytes.NewReader(stereoPCM(1, 2)), 16000, 16000)
	err := rs.fill(make([]float32, 8), 1)
	assert.True(t, errors.Is(err, io.EOF))
}

func TestMP3Backend(t *testing.T) {
	backend := NewMP3(filepath.Join(t.TempDir(), "missing.mp3"))

	_, err := backend.OpenCapture(Config{SampleRate: 16000, Channels: 1}, func([]float32) {})
	assert.Error(t, err)

	_, err = backend.OpenPlayback(Config{SampleRate: 16000, Channels: 2}, func([]float32) {})
	assert.ErrorIs(t, err, ErrUnsupported)
}
