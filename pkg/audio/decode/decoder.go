// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for voice decoders with loss concealment
package decode

// Decoder decodes voice packets to 16-bit PCM and synthesizes audio for lost packets
type Decoder interface {
	// Decode converts one packet to PCM samples. An empty packet is
	// treated as lost and concealed with one frame.
	Decode(data []byte) ([]int16, error)

	// Conceal synthesizes frameSize samples per channel standing in for a
	// packet that never arrived
	Conceal(frameSize int) ([]int16, error)

	// Close releases decoder resources
	Close() error
}
