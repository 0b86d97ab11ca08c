// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the channels it reports key presses on
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// TalkMsg asks the application to start or stop transmitting
type TalkMsg struct {
	Talking bool
}

// QuitMsg is sent when the user quits
type QuitMsg struct{}

// Controls holds channels the TUI uses to reach the application
type Controls struct {
	Talk chan TalkMsg
	Quit chan QuitMsg
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Talk: make(chan TalkMsg, 10),
		Quit: make(chan QuitMsg, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		controls: controls,
	}
}

// Run creates the TUI program; the caller runs it
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
