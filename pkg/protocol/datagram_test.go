// ABOUTME: Tests for the voice datagram
// ABOUTME: Checks framing and every rejection case
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

func TestVoiceDatagramLayout(t *testing.T) {
	data, err := VoiceDatagram{SpeakerID: 0x01020304, Payload: []byte{0xaa, 0xbb}}.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, []byte{
		0x87,
		0x04, 0x03, 0x02, 0x01,
		0x02, 0x00, 0x00, 0x00,
		0xaa, 0xbb,
	}, data)

	dgram, err := ParseVoiceDatagram(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), dgram.SpeakerID)
	assert.Equal(t, []byte{0xaa, 0xbb}, dgram.Payload)
}

func TestVoiceDatagramEmptyPayload(t *testing.T) {
	data, err := VoiceDatagram{SpeakerID: 1}.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, VoiceHeaderSize)

	dgram, err := ParseVoiceDatagram(data)
	require.NoError(t, err)
	assert.Empty(t, dgram.Payload)
}

func TestParseVoiceDatagramRejects(t *testing.T) {
	valid, err := VoiceDatagram{SpeakerID: 3, Payload: []byte{1, 2, 3}}.MarshalBinary()
	require.NoError(t, err)

	wrongTag := append([]byte(nil), valid...)
	wrongTag[0] = 0x04

	oversized := make([]byte, VoiceHeaderSize)
	oversized[0] = VoicePacketID
	oversized[5] = 0xa1 // 4001
	oversized[6] = 0x0f

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortDatagram},
		{"short header", valid[:5], ErrShortDatagram},
		{"wrong tag", wrongTag, ErrBadPacketType},
		{"truncated payload", valid[:len(valid)-1], ErrLengthMismatch},
		{"trailing bytes", append(append([]byte(nil), valid...), 0), ErrLengthMismatch},
		{"oversized length", oversized, ErrPayloadTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseVoiceDatagram(tt.data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMarshalRejectsOversizedPayload(t *testing.T) {
	_, err := VoiceDatagram{Payload: make([]byte, audio.MaxPacketSize+1)}.MarshalBinary()
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = VoiceDatagram{Payload: make([]byte, audio.MaxPacketSize)}.MarshalBinary()
	assert.NoError(t, err)
}

func TestStampSpeakerID(t *testing.T) {
	data, err := VoiceDatagram{SpeakerID: 1, Payload: []byte{9}}.MarshalBinary()
	require.NoError(t, err)

	require.NoError(t, StampSpeakerID(data, 77))
	dgram, err := ParseVoiceDatagram(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), dgram.SpeakerID)
	assert.Equal(t, []byte{9}, dgram.Payload)

	assert.ErrorIs(t, StampSpeakerID([]byte{0x87}, 1), ErrShortDatagram)
}
