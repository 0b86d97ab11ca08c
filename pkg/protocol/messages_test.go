// ABOUTME: Tests for voice relay control messages
// ABOUTME: Verifies envelope decoding of control message payloads
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
)

func TestVoiceUpdateThroughEnvelope(t *testing.T) {
	msg := Message{
		Type: TypeVoiceUpdate,
		Payload: VoiceUpdate{
			SpeakerID:   42,
			IsTalking:   true,
			Position:    audio.Vec3{1, 2, 3},
			WorldOrCell: 0x3c,
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded.Type != TypeVoiceUpdate {
		t.Errorf("expected type %s, got %s", TypeVoiceUpdate, decoded.Type)
	}

	var update VoiceUpdate
	if err := DecodePayload(decoded, &update); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if update.SpeakerID != 42 || !update.IsTalking || update.WorldOrCell != 0x3c {
		t.Errorf("unexpected update: %+v", update)
	}
	if update.Position != (audio.Vec3{1, 2, 3}) {
		t.Errorf("expected position [1 2 3], got %v", update.Position)
	}
}

func TestServerHelloWireNames(t *testing.T) {
	data, err := json.Marshal(ServerHello{ServerID: "s", Name: "relay", Version: ProtocolVersion, SpeakerID: 9})
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if raw["speaker_id"] != float64(9) {
		t.Errorf("expected speaker_id 9, got %v", raw["speaker_id"])
	}
}

func TestDecodePayloadTypeMismatch(t *testing.T) {
	msg := Message{Type: TypeServerHello, Payload: map[string]interface{}{"speaker_id": "nope"}}
	var hello ServerHello
	if err := DecodePayload(msg, &hello); err == nil {
		t.Error("expected error for string speaker_id")
	}
}
