// ABOUTME: Binary voice datagram framing
// ABOUTME: Tag byte, little-endian speaker id and payload length, then the encoded packet
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

const (
	// VoicePacketID tags a binary message as a voice datagram
	VoicePacketID byte = 0x87

	// VoiceHeaderSize is the size of the datagram header (tag + speaker id + length)
	VoiceHeaderSize = 1 + 4 + 4
)

var (
	ErrShortDatagram   = errors.New("voice datagram shorter than header")
	ErrBadPacketType   = errors.New("not a voice datagram")
	ErrLengthMismatch  = errors.New("voice datagram length does not match header")
	ErrPayloadTooLarge = errors.New("voice payload exceeds maximum packet size")
)

// VoiceDatagram carries one encoded packet from one speaker
type VoiceDatagram struct {
	SpeakerID uint32
	Payload   []byte
}

// MarshalBinary encodes the datagram
func (d VoiceDatagram) MarshalBinary() ([]byte, error) {
	if len(d.Payload) > audio.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(d.Payload))
	}

	buf := make([]byte, VoiceHeaderSize+len(d.Payload))
	buf[0] = VoicePacketID
	binary.LittleEndian.PutUint32(buf[1:5], d.SpeakerID)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(d.Payload)))
	copy(buf[VoiceHeaderSize:], d.Payload)
	return buf, nil
}

// ParseVoiceDatagram decodes a datagram. The returned payload aliases data.
func ParseVoiceDatagram(data []byte) (VoiceDatagram, error) {
	if len(data) < VoiceHeaderSize {
		return VoiceDatagram{}, ErrShortDatagram
	}
	if data[0] != VoicePacketID {
		return VoiceDatagram{}, fmt.Errorf("%w: tag %d", ErrBadPacketType, data[0])
	}

	size := binary.LittleEndian.Uint32(data[5:9])
	if size > audio.MaxPacketSize {
		return VoiceDatagram{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, size)
	}
	if uint64(len(data)) != uint64(VoiceHeaderSize)+uint64(size) {
		return VoiceDatagram{}, fmt.Errorf("%w: header says %d, got %d",
			ErrLengthMismatch, size, len(data)-VoiceHeaderSize)
	}

	return VoiceDatagram{
		SpeakerID: binary.LittleEndian.Uint32(data[1:5]),
		Payload:   data[VoiceHeaderSize:],
	}, nil
}

// StampSpeakerID overwrites the speaker id of an encoded datagram in place
func StampSpeakerID(data []byte, speakerID uint32) error {
	if len(data) < VoiceHeaderSize {
		return ErrShortDatagram
	}
	if data[0] != VoicePacketID {
		return fmt.Errorf("%w: tag %d", ErrBadPacketType, data[0])
	}
	binary.LittleEndian.PutUint32(data[1:5], speakerID)
	return nil
}
