// ABOUTME: Construction options shared by the voice chat components
// ABOUTME: Collaborators, jitter thresholds and spatial range with voice chat defaults
package voicechat

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/audio/decode"
	"github.com/Sendspin/sendspin-voice/pkg/audio/device"
	"github.com/Sendspin/sendspin-voice/pkg/audio/encode"
	"github.com/Sendspin/sendspin-voice/pkg/clock"
)

var (
	// ErrNilCallback is returned by Initialize when no callback is supplied
	ErrNilCallback = errors.New("callback must not be nil")

	// ErrNotInitialized is returned by operations that need an initialized component
	ErrNotInitialized = errors.New("voice chat not initialized")
)

// DefaultMaxVoiceDistance is the distance in world units beyond which a
// speaker is inaudible
const DefaultMaxVoiceDistance = 2000.0

// JitterConfig controls per-speaker buffering, concealment and eviction
type JitterConfig struct {
	// TargetBufferSamples must be decoded before a new speaker is mixed
	TargetBufferSamples int

	// MinBufferSamples is reported per speaker; mixing does not consult it
	MinBufferSamples int

	// ConcealTimeout is the silence after which lost frames are synthesized
	ConcealTimeout time.Duration

	// MaxConcealFrames caps consecutive synthesized frames
	MaxConcealFrames int

	// EvictTimeout removes a drained speaker after this much silence
	EvictTimeout time.Duration
}

// DefaultJitter returns 300 ms of buffering, 60 ms concealment timeout
// capped at five frames, and one second eviction
func DefaultJitter() JitterConfig {
	return JitterConfig{
		TargetBufferSamples: 4800,
		MinBufferSamples:    3200,
		ConcealTimeout:      60 * time.Millisecond,
		MaxConcealFrames:    5,
		EvictTimeout:        time.Second,
	}
}

// Validate checks the thresholds are usable
func (j JitterConfig) Validate() error {
	if j.TargetBufferSamples < 0 {
		return fmt.Errorf("target buffer must not be negative: %d", j.TargetBufferSamples)
	}
	if j.MinBufferSamples < 0 || j.MinBufferSamples > j.TargetBufferSamples {
		return fmt.Errorf("min buffer %d must be between 0 and target %d", j.MinBufferSamples, j.TargetBufferSamples)
	}
	if j.ConcealTimeout <= 0 {
		return fmt.Errorf("conceal timeout must be positive: %v", j.ConcealTimeout)
	}
	if j.MaxConcealFrames < 0 {
		return fmt.Errorf("max conceal frames must not be negative: %d", j.MaxConcealFrames)
	}
	if j.EvictTimeout <= 0 {
		return fmt.Errorf("evict timeout must be positive: %v", j.EvictTimeout)
	}
	return nil
}

// Options configures Capture, Playback and Manager. Zero fields are filled
// with defaults.
type Options struct {
	// Backend opens the audio streams (default: malgo)
	Backend device.Backend

	// Codec selects the default encoder and decoder (default: opus)
	Codec string

	// Encoder tunes the default encoder
	Encoder encode.Settings

	// NewEncoder overrides encoder construction
	NewEncoder func() (encode.Encoder, error)

	// NewDecoder overrides decoder construction; called once per speaker
	NewDecoder func() (decode.Decoder, error)

	Clock   clock.Clock
	Logger  logrus.FieldLogger
	Metrics *Metrics

	Jitter           JitterConfig
	MaxVoiceDistance float64
}

// DefaultOptions returns options for Opus voice over the default audio device
func DefaultOptions() Options {
	return Options{
		Backend:          device.NewMalgo(),
		Codec:            audio.CodecOpus,
		Encoder:          encode.DefaultSettings(),
		Clock:            clock.System{},
		Logger:           logrus.StandardLogger(),
		Jitter:           DefaultJitter(),
		MaxVoiceDistance: DefaultMaxVoiceDistance,
	}
}

// withDefaults fills every unset field
func (o Options) withDefaults() Options {
	if o.Backend == nil {
		o.Backend = device.NewMalgo()
	}
	if o.Codec == "" {
		o.Codec = audio.CodecOpus
	}
	if o.Encoder == (encode.Settings{}) {
		o.Encoder = encode.DefaultSettings()
	}
	if o.NewEncoder == nil {
		format, settings := audio.VoiceFormat(o.Codec), o.Encoder
		switch o.Codec {
		case audio.CodecPCM:
			o.NewEncoder = func() (encode.Encoder, error) { return encode.NewPCM(format) }
		default:
			o.NewEncoder = func() (encode.Encoder, error) { return encode.NewOpus(format, settings) }
		}
	}
	if o.NewDecoder == nil {
		format := audio.VoiceFormat(o.Codec)
		switch o.Codec {
		case audio.CodecPCM:
			o.NewDecoder = func() (decode.Decoder, error) { return decode.NewPCM(format) }
		default:
			o.NewDecoder = func() (decode.Decoder, error) { return decode.NewOpus(format) }
		}
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Jitter == (JitterConfig{}) {
		o.Jitter = DefaultJitter()
	}
	if o.MaxVoiceDistance <= 0 {
		o.MaxVoiceDistance = DefaultMaxVoiceDistance
	}
	return o
}
