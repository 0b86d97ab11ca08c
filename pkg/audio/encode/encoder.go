// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for voice frame encoders
package encode

// Encoder compresses one PCM frame into one packet
type Encoder interface {
	// Encode converts a frame of 16-bit PCM samples to a packet.
	// An empty result with a nil error means there is nothing to send.
	Encode(pcm []int16) ([]byte, error)

	// Close releases encoder resources
	Close() error
}

// Settings tunes an encoder for speech
type Settings struct {
	// Bitrate is the target bitrate in bits per second
	Bitrate int

	// Complexity trades CPU for quality (0-10)
	Complexity int
}

// DefaultSettings returns the voice chat settings: 24 kbps, medium complexity
func DefaultSettings() Settings {
	return Settings{
		Bitrate:    24000,
		Complexity: 5,
	}
}
