// ABOUTME: Bubbletea model for the voice client TUI
// ABOUTME: Defines talking, relay and speaker state plus key handling
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sendspin/sendspin-voice/pkg/audio"
	"github.com/Sendspin/sendspin-voice/pkg/voicechat"
)

// Model represents the TUI state
type Model struct {
	// Connection
	connected bool
	relayName string
	speakerID uint32

	// Voice
	talking  bool
	speakers []voicechat.SpeakerInfo

	// Stats
	framesSent     int64
	packetsDropped int64

	showDebug bool

	controls *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderSpeakers()

	if m.showDebug {
		s += m.renderDebug()
	}

	s += m.renderHelp()
	return s
}

// renderHeader renders connection and talk status
func (m Model) renderHeader() string {
	connStatus := "Disconnected"
	if m.connected {
		connStatus = truncate(fmt.Sprintf("Connected to %s as #%d", m.relayName, m.speakerID), 45)
	}

	micIcon := "○"
	micText := "Muted (press v to talk)"
	if m.talking {
		micIcon = "●"
		micText = "Talking"
	}

	return fmt.Sprintf(`┌─ Sendspin Voice ─────────────────────────────────────┐
│ Status: %-45s │
│ Mic:    %s %-42s │
├──────────────────────────────────────────────────────┤
`, connStatus, micIcon, micText)
}

// renderSpeakers renders one line per active speaker
func (m Model) renderSpeakers() string {
	if len(m.speakers) == 0 {
		return "│ Nobody is talking                                    │\n"
	}

	s := "│ Speakers:                                            │\n"
	for _, sp := range m.speakers {
		state := "live"
		if sp.Buffering {
			state = "buffering"
		}
		bufferedMs := sp.BufferedSamples * 1000 / audio.SampleRate
		line := fmt.Sprintf("#%-5d %-9s [%s] %4dms", sp.ID, state, renderBar(bufferedMs, 300, 10), bufferedMs)
		s += fmt.Sprintf("│   %-50s │\n", truncate(line, 50))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `├──────────────────────────────────────────────────────┤
│ v:Talk  d:Debug  q:Quit                              │
└──────────────────────────────────────────────────────┘
`
}

// renderDebug renders per-speaker jitter details
func (m Model) renderDebug() string {
	s := fmt.Sprintf("│ DEBUG: sent %-8d dropped %-8d%-21s │\n", m.framesSent, m.packetsDropped, "")
	for _, sp := range m.speakers {
		line := fmt.Sprintf("#%d pos=(%.0f,%.0f,%.0f) conceal=%d", sp.ID,
			sp.Position[0], sp.Position[1], sp.Position[2], sp.ConcealCount)
		s += fmt.Sprintf("│   %-50s │\n", truncate(line, 50))
	}
	return s
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.controls != nil {
			select {
			case m.controls.Quit <- QuitMsg{}:
			default:
			}
		}
		return m, tea.Quit
	case "v", " ":
		m.talking = !m.talking
		if m.controls != nil {
			select {
			case m.controls.Talk <- TalkMsg{Talking: m.talking}:
			default:
			}
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.RelayName != "" {
		m.relayName = msg.RelayName
	}
	if msg.SpeakerID != 0 {
		m.speakerID = msg.SpeakerID
	}
	if msg.Talking != nil {
		m.talking = *msg.Talking
	}
	if msg.Speakers != nil {
		m.speakers = msg.Speakers
	}
	if msg.FramesSent != 0 {
		m.framesSent = msg.FramesSent
	}
	if msg.PacketsDropped != 0 {
		m.packetsDropped = msg.PacketsDropped
	}
}

// StatusMsg updates TUI state; zero fields leave state unchanged
type StatusMsg struct {
	Connected      *bool
	RelayName      string
	SpeakerID      uint32
	Talking        *bool
	Speakers       []voicechat.SpeakerInfo
	FramesSent     int64
	PacketsDropped int64
}

func renderBar(value, max, width int) string {
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
