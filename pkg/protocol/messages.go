// ABOUTME: Voice relay control message definitions
// ABOUTME: JSON messages exchanged between voice clients and the relay
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

// ProtocolVersion is the control protocol version
const ProtocolVersion = 1

// Message types
const (
	TypeClientHello   = "client/hello"
	TypeClientGoodbye = "client/goodbye"
	TypeServerHello   = "server/hello"
	TypeServerError   = "server/error"
	TypeVoiceUpdate   = "voice/update"
)

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// DecodePayload unmarshals the payload of a received message into v
func DecodePayload(msg Message, v interface{}) error {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("failed to re-encode %s payload: %w", msg.Type, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", msg.Type, err)
	}
	return nil
}

// ClientHello is sent by clients to join a relay
type ClientHello struct {
	ClientID    string       `json:"client_id"`
	Name        string       `json:"name"`
	Version     int          `json:"version"`
	DeviceInfo  *DeviceInfo  `json:"device_info,omitempty"`
	AudioFormat *AudioFormat `json:"audio_format,omitempty"`
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes the codec a client sends
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
}

// ServerHello is the relay's response to client/hello. SpeakerID is the id
// stamped on every datagram the client sends.
type ServerHello struct {
	ServerID  string `json:"server_id"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
	SpeakerID uint32 `json:"speaker_id"`
}

// VoiceUpdate announces a speaker's talking state and where they are
type VoiceUpdate struct {
	SpeakerID   uint32     `json:"speaker_id"`
	IsTalking   bool       `json:"is_talking"`
	Position    audio.Vec3 `json:"position"`
	WorldOrCell uint32     `json:"world_or_cell"`
}

// ServerError reports a rejected request
type ServerError struct {
	Message string `json:"message"`
}

// ClientGoodbye is sent before disconnecting
type ClientGoodbye struct {
	Reason string `json:"reason"`
}
