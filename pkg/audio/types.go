// ABOUTME: Audio type definitions for the voice pipeline
// ABOUTME: Defines pipeline constants, positions, and sample conversions
package audio

import (
	"math"
	"time"
)

const (
	// SampleRate is the working rate of the whole pipeline (Opus wideband)
	SampleRate = 16000

	// FrameSize is the number of mono samples in one 20ms frame
	FrameSize = 320

	// FrameDuration is the playback length of one frame
	FrameDuration = 20 * time.Millisecond

	// MaxPacketSize bounds a single encoded frame
	MaxPacketSize = 4000

	// MaxDecodeFrameSize is the largest frame a decoder may return (120ms at 48kHz)
	MaxDecodeFrameSize = 5760
)

// Codec names
const (
	CodecOpus = "opus"
	CodecPCM  = "pcm"
)

// Format describes an audio stream format
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
}

// VoiceFormat returns the mono 16kHz format used for every speaker
func VoiceFormat(codec string) Format {
	return Format{
		Codec:      codec,
		SampleRate: SampleRate,
		Channels:   1,
	}
}

// Vec3 is a position in world units
type Vec3 [3]float32

// Sub returns v - o
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Length returns the Euclidean norm of v
func (v Vec3) Length() float64 {
	x, y, z := float64(v[0]), float64(v[1]), float64(v[2])
	return math.Sqrt(x*x + y*y + z*z)
}

// FloatToInt16 converts a normalized float sample to 16-bit PCM, clamping to [-1, 1]
func FloatToInt16(sample float32) int16 {
	if sample > 1 {
		sample = 1
	} else if sample < -1 {
		sample = -1
	}
	return int16(sample * 32767)
}

// Int16ToFloat converts a 16-bit PCM sample to a normalized float
func Int16ToFloat(sample int16) float32 {
	return float32(sample) / 32768
}

// FloatsToInt16 converts src into dst; dst must be at least len(src) long
func FloatsToInt16(dst []int16, src []float32) {
	for i, s := range src {
		dst[i] = FloatToInt16(s)
	}
}

// Int16sToFloat converts src into dst; dst must be at least len(src) long
func Int16sToFloat(dst []float32, src []int16) {
	for i, s := range src {
		dst[i] = Int16ToFloat(s)
	}
}
