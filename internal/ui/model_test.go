// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, push-to-talk keys and rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sendspin/sendspin-voice/pkg/voicechat"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // Controls are optional for testing

	if model.connected {
		t.Error("expected connected to be false initially")
	}
	if model.talking {
		t.Error("expected talking to be false initially")
	}
	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}
}

func TestStatusMsgConnected(t *testing.T) {
	model := NewModel(nil)

	connected := true
	model.applyStatus(StatusMsg{
		Connected: &connected,
		RelayName: "test-relay",
		SpeakerID: 4,
	})

	if !model.connected {
		t.Error("expected connected to be true after status update")
	}
	if model.relayName != "test-relay" {
		t.Errorf("expected relayName 'test-relay', got '%s'", model.relayName)
	}
	if model.speakerID != 4 {
		t.Errorf("expected speakerID 4, got %d", model.speakerID)
	}
}

func TestStatusMsgZeroValuesKeepState(t *testing.T) {
	model := NewModel(nil)

	talking := true
	model.applyStatus(StatusMsg{Talking: &talking, FramesSent: 10})
	model.applyStatus(StatusMsg{})

	if !model.talking {
		t.Error("empty status should not clear talking")
	}
	if model.framesSent != 10 {
		t.Errorf("expected framesSent 10, got %d", model.framesSent)
	}
}

func TestStatusMsgSpeakers(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{Speakers: []voicechat.SpeakerInfo{
		{ID: 2, Buffering: true, BufferedSamples: 1600},
		{ID: 9, BufferedSamples: 4800},
	}})
	if len(model.speakers) != 2 {
		t.Fatalf("expected 2 speakers, got %d", len(model.speakers))
	}

	// an empty non-nil list means everyone left
	model.applyStatus(StatusMsg{Speakers: []voicechat.SpeakerInfo{}})
	if len(model.speakers) != 0 {
		t.Errorf("expected speakers cleared, got %d", len(model.speakers))
	}
}

func TestTalkKeyTogglesAndNotifies(t *testing.T) {
	controls := NewControls()
	var m tea.Model = NewModel(controls)

	m, _ = m.Update(key("v"))
	if !m.(Model).talking {
		t.Error("expected talking after v")
	}
	if msg := <-controls.Talk; !msg.Talking {
		t.Error("expected a start talking request")
	}

	m, _ = m.Update(key("v"))
	if m.(Model).talking {
		t.Error("expected not talking after second v")
	}
	if msg := <-controls.Talk; msg.Talking {
		t.Error("expected a stop talking request")
	}
}

func TestQuitKey(t *testing.T) {
	controls := NewControls()
	m := NewModel(controls)

	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-controls.Quit:
	default:
		t.Error("expected quit notification")
	}
}

func TestDebugToggle(t *testing.T) {
	var m tea.Model = NewModel(nil)
	m, _ = m.Update(key("d"))
	if !m.(Model).showDebug {
		t.Error("expected debug view enabled")
	}
}

func TestViewRendersSpeakers(t *testing.T) {
	var m tea.Model = NewModel(nil)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	if !strings.Contains(m.View(), "Nobody is talking") {
		t.Error("expected empty speaker list")
	}

	m, _ = m.Update(StatusMsg{Speakers: []voicechat.SpeakerInfo{{ID: 7, Buffering: true}}})
	view := m.View()
	if !strings.Contains(view, "#7") || !strings.Contains(view, "buffering") {
		t.Errorf("expected speaker 7 buffering in view:\n%s", view)
	}
}

func TestViewBeforeResize(t *testing.T) {
	if got := NewModel(nil).View(); got != "Loading..." {
		t.Errorf("expected Loading..., got %q", got)
	}
}

func TestTruncateFunction(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"this is longer than allowed", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 4, "abcd"},
		{"abcde", 4, "a..."},
	}

	for _, tt := range tests {
		result := truncate(tt.input, tt.maxLen)
		if result != tt.expected {
			t.Errorf("truncate(%q, %d) = %q, expected %q",
				tt.input, tt.maxLen, result, tt.expected)
		}
	}
}

func TestRenderBarClamps(t *testing.T) {
	if got := renderBar(600, 300, 10); got != strings.Repeat("█", 10) {
		t.Errorf("expected full bar, got %q", got)
	}
	if got := renderBar(0, 300, 4); got != "░░░░" {
		t.Errorf("expected empty bar, got %q", got)
	}
}
