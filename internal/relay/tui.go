// ABOUTME: Relay TUI for displaying connected speakers and traffic
// ABOUTME: Real-time relay status display using bubbletea and lipgloss
package relay

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// RelayTUI manages the relay TUI
type RelayTUI struct {
	program  *tea.Program
	updates  chan Status
	quitChan chan struct{}
}

// Status holds relay state for the TUI
type Status struct {
	Name      string
	Port      int
	Clients   []ClientInfo
	Forwarded int64
	Dropped   int64
}

// ClientInfo holds client information for display
type ClientInfo struct {
	Name        string
	SpeakerID   uint32
	Talking     bool
	WorldOrCell uint32
}

type tuiModel struct {
	status    Status
	startTime time.Time
	quitting  bool
	quitChan  chan struct{}
}

type tickMsg time.Time
type statusMsg Status

func (m tuiModel) Init() tea.Cmd {
	return tickEvery()
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.quitting = true
			select {
			case m.quitChan <- struct{}{}:
			default:
			}
			return m, tea.Quit
		}

	case tickMsg:
		return m, tickEvery()

	case statusMsg:
		m.status = Status(msg)
	}

	return m, nil
}

func (m tuiModel) View() string {
	if m.quitting {
		return "Shutting down relay...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("205")).
		MarginBottom(1)
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86"))
	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))
	talkingStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	var b strings.Builder

	b.WriteString(titleStyle.Render("Sendspin Voice Relay"))
	b.WriteString("\n\n")

	row := func(label, value string) {
		b.WriteString(headerStyle.Render(label))
		b.WriteString(valueStyle.Render(value))
		b.WriteString("\n")
	}
	row("Relay: ", m.status.Name)
	row("Port: ", fmt.Sprintf("%d", m.status.Port))
	row("Uptime: ", time.Since(m.startTime).Round(time.Second).String())
	row("Voice: ", fmt.Sprintf("%d forwarded, %d dropped", m.status.Forwarded, m.status.Dropped))
	b.WriteString("\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("Connected Speakers (%d)", len(m.status.Clients))))
	b.WriteString("\n\n")

	if len(m.status.Clients) == 0 {
		b.WriteString(valueStyle.Render("  No speakers connected"))
		b.WriteString("\n")
	}
	for _, c := range m.status.Clients {
		mic := valueStyle.Render("○")
		if c.Talking {
			mic = talkingStyle.Render("●")
		}
		b.WriteString(fmt.Sprintf("  %s #%d %s", mic, c.SpeakerID, c.Name))
		if c.WorldOrCell != 0 {
			b.WriteString(valueStyle.Render(fmt.Sprintf(" (world %d)", c.WorldOrCell)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Faint(true).Render("Press 'q' or Ctrl+C to quit"))

	return b.String()
}

// NewRelayTUI creates the relay TUI program
func NewRelayTUI(name string, port int) *RelayTUI {
	t := &RelayTUI{
		updates:  make(chan Status, 10),
		quitChan: make(chan struct{}, 1),
	}
	t.program = tea.NewProgram(tuiModel{
		status: Status{
			Name: name,
			Port: port,
		},
		startTime: time.Now(),
		quitChan:  t.quitChan,
	}, tea.WithAltScreen())
	return t
}

// Start runs the TUI until it quits
func (t *RelayTUI) Start() error {
	go func() {
		for status := range t.updates {
			t.program.Send(statusMsg(status))
		}
	}()

	_, err := t.program.Run()
	return err
}

// Update sends a status update without blocking
func (t *RelayTUI) Update(status Status) {
	select {
	case t.updates <- status:
	default:
	}
}

// Stop stops the TUI; Update must not be called afterwards
func (t *RelayTUI) Stop() {
	t.program.Quit()
	close(t.updates)
}

// QuitChan signals when the user wants to quit
func (t *RelayTUI) QuitChan() <-chan struct{} {
	return t.quitChan
}
