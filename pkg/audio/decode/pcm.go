// ABOUTME: Raw PCM voice decoder
// ABOUTME: Decodes 16-bit little-endian PCM; conceals lost packets with silence
package decode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	channels int
	closed   bool
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}
	if format.Channels < 1 {
		return nil, fmt.Errorf("invalid channel count: %d", format.Channels)
	}

	return &PCMDecoder{
		channels: format.Channels,
	}, nil
}

// Decode converts 16-bit little-endian bytes to int16 samples
func (d *PCMDecoder) Decode(data []byte) ([]int16, error) {
	if d.closed {
		return nil, ErrClosed
	}
	if len(data) == 0 {
		return d.Conceal(audio.FrameSize)
	}
	if len(data)%(2*d.channels) != 0 {
		return nil, fmt.Errorf("pcm payload of %d bytes is not whole %d-channel samples", len(data), d.channels)
	}

	numSamples := len(data) / 2
	samples := make([]int16, numSamples)
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// Conceal returns silence
func (d *PCMDecoder) Conceal(frameSize int) ([]int16, error) {
	if d.closed {
		return nil, ErrClosed
	}
	return make([]int16, frameSize*d.channels), nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	d.closed = true
	return nil
}
