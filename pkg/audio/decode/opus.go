// ABOUTME: Opus audio decoder
// ABOUTME: Decodes Opus packets to 16-bit PCM and runs Opus packet loss concealment
package decode

import (
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// ErrClosed is returned when decoding after Close
var ErrClosed = errors.New("decoder closed")

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder *opus.Decoder
	format  audio.Format
	pcm     []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != audio.CodecOpus {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder: dec,
		format:  format,
		pcm:     make([]int16, audio.MaxDecodeFrameSize*format.Channels),
	}, nil
}

// Decode converts Opus bytes to int16 samples
func (d *OpusDecoder) Decode(data []byte) ([]int16, error) {
	if d.decoder == nil {
		return nil, ErrClosed
	}
	if len(data) == 0 {
		return d.Conceal(audio.FrameSize)
	}

	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	out := make([]int16, n*d.format.Channels)
	copy(out, d.pcm)
	return out, nil
}

// Conceal asks the Opus decoder to extrapolate frameSize samples from its history
func (d *OpusDecoder) Conceal(frameSize int) ([]int16, error) {
	if d.decoder == nil {
		return nil, ErrClosed
	}
	if frameSize <= 0 || frameSize > audio.MaxDecodeFrameSize {
		return nil, fmt.Errorf("invalid concealment frame size: %d", frameSize)
	}

	out := make([]int16, frameSize*d.format.Channels)
	if err := d.decoder.DecodePLC(out); err != nil {
		return nil, fmt.Errorf("opus concealment failed: %w", err)
	}
	return out, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	d.decoder = nil
	return nil
}
