package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	State   client.State
	Attempt int
	Delay   time.Duration
	// Remote is the server's own view from connection_status frames.
	Remote      string
	Project     string
	Capture     capture.Job
	LastCapture time.Time
	Width       int
}

// New creates a status bar model.
func New(project string) Model {
	return Model{State: client.StateDisconnected, Project: project}
}

// SetStatus applies a connection.status event.
func (m *Model) SetStatus(e client.StatusEvent) {
	m.State = e.State
	m.Attempt = e.Attempt
	m.Delay = e.Delay
	if e.State != client.StateConnected {
		m.Remote = ""
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	state := m.State.String()
	label := state
	switch m.State {
	case client.StateReconnecting:
		label = fmt.Sprintf("reconnecting (attempt %d in %s)", m.Attempt, m.Delay)
	case client.StateExhausted:
		label = "offline, ctrl+r to reconnect"
	}
	connStr := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(theme.StateGlyph(state) + " " + label)
	if m.Remote != "" {
		connStr += theme.StyleDimmed.Render(" (server: " + m.Remote + ")")
	}

	var capStr string
	if m.Capture.Active {
		capStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render(
			fmt.Sprintf("capture %s every %s", m.Capture.Target, m.Capture.Period))
		if !m.LastCapture.IsZero() {
			capStr += theme.StyleDimmed.Render(" last " + m.LastCapture.Format("15:04:05"))
		}
	} else {
		capStr = theme.StyleDimmed.Render("capture off")
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + "project " + m.Project + sep + capStr

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
