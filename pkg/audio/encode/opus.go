// ABOUTME: Opus voice encoder
// ABOUTME: Encodes 16-bit PCM frames to Opus packets tuned for VoIP
package encode

import (
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// ErrClosed is returned when encoding after Close
var ErrClosed = errors.New("encoder closed")

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder  *opus.Encoder
	channels int
	packet   []byte
}

// NewOpus creates an Opus encoder with the VoIP application profile.
// Variable bitrate is the libopus default and stays enabled.
func NewOpus(format audio.Format, settings Settings) (Encoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if err := encoder.SetBitrate(settings.Bitrate); err != nil {
		return nil, fmt.Errorf("failed to set opus bitrate %d: %w", settings.Bitrate, err)
	}
	if err := encoder.SetComplexity(settings.Complexity); err != nil {
		return nil, fmt.Errorf("failed to set opus complexity %d: %w", settings.Complexity, err)
	}

	return &OpusEncoder{
		encoder:  encoder,
		channels: format.Channels,
		packet:   make([]byte, audio.MaxPacketSize),
	}, nil
}

// Encode converts one PCM frame to an Opus packet. The returned slice is a
// fresh copy and stays valid after the next call.
func (e *OpusEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.encoder == nil {
		return nil, ErrClosed
	}
	if len(pcm)%e.channels != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of %d channels", len(pcm), e.channels)
	}

	n, err := e.encoder.Encode(pcm, e.packet)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	out := make([]byte, n)
	copy(out, e.packet[:n])
	return out, nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	e.encoder = nil
	return nil
}
