// ABOUTME: Raw PCM voice encoder
// ABOUTME: Packs 16-bit samples little-endian, for debugging links without Opus
package encode

import (
	"encoding/binary"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	closed bool
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != audio.CodecPCM {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	// A 16kHz mono 20ms frame is 640 bytes, well under the packet bound
	if format.SampleRate*format.Channels*2/50 > audio.MaxPacketSize {
		return nil, fmt.Errorf("pcm frame of %dHz/%dch exceeds max packet size %d",
			format.SampleRate, format.Channels, audio.MaxPacketSize)
	}

	return &PCMEncoder{}, nil
}

// Encode converts int16 samples to 16-bit little-endian bytes
func (e *PCMEncoder) Encode(pcm []int16) ([]byte, error) {
	if e.closed {
		return nil, ErrClosed
	}

	output := make([]byte, len(pcm)*2)
	for i, sample := range pcm {
		binary.LittleEndian.PutUint16(output[i*2:], uint16(sample))
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	e.closed = true
	return nil
}
