// Package debug provides a scrollable overlay listing bus events as they
// happen.
package debug

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/goblin/desktop/internal/bus"
	"github.com/goblin/desktop/internal/capture"
	"github.com/goblin/desktop/internal/client"
	"github.com/goblin/desktop/internal/stream"
	"github.com/goblin/desktop/internal/theme"
)

const maxEntries = 200

// Entry is a single event log line.
type Entry struct {
	Time    time.Time
	Kind    string // "conn", "err", "cap", "msg"
	Message string
}

// Model holds debug log state.
type Model struct {
	Entries []Entry
	Offset  int // lines scrolled up from the newest entry
}

func New() Model {
	return Model{}
}

// Add appends a log entry, keeping the newest maxEntries.
func (m *Model) Add(at time.Time, kind, message string) {
	m.Entries = append(m.Entries, Entry{Time: at, Kind: kind, Message: message})
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[len(m.Entries)-maxEntries:]
	}
	m.Offset = 0
}

// Record adds a line describing e. Streaming updates are too chatty and are
// skipped.
func (m *Model) Record(at time.Time, e bus.Event) {
	if kind, msg, ok := Describe(e); ok {
		m.Add(at, kind, msg)
	}
}

// Describe renders a bus event as a log line.
func Describe(e bus.Event) (kind, message string, ok bool) {
	switch e := e.(type) {
	case client.StatusEvent:
		msg := "state " + e.State.String()
		if e.State == client.StateReconnecting {
			msg += fmt.Sprintf(" attempt=%d delay=%s", e.Attempt, e.Delay)
		}
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return "conn", msg, true
	case client.RemoteStatusEvent:
		return "conn", "server reports " + e.Status, true
	case client.ErrorEvent:
		if e.Remote {
			return "err", "server: " + e.Detail, true
		}
		return "err", e.Detail, true
	case stream.CompleteEvent:
		msg := fmt.Sprintf("%s turn %s complete (%d chars)", e.Source, shortID(e.TurnID), len(e.Text))
		if e.Implicit {
			msg += " implicit"
		}
		return "msg", msg, true
	case capture.SentEvent:
		return "cap", fmt.Sprintf("sent %s (%d bytes)", e.Target, e.Bytes), true
	case capture.ErrorEvent:
		return "err", "capture " + e.Target + ": " + e.Err.Error(), true
	default:
		return "", "", false
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ScrollUp moves towards older entries.
func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.Entries)-1, 0))
}

// ScrollDown moves towards newer entries.
func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// View renders the log as an overlay panel.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	visible := max(height-6, 3)

	title := theme.StyleHeader.Render(" EVENT LOG ")
	help := theme.StyleDimmed.Render(fmt.Sprintf("pgup/pgdn:scroll  esc:close  %d entries", len(m.Entries)))

	panel := lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder)

	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("  No events recorded yet.")
		return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", help))
	}

	end := len(m.Entries) - m.Offset
	start := max(end-visible, 0)

	lines := make([]string, 0, end-start)
	for _, e := range m.Entries[start:end] {
		ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
		kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(5).Render(e.Kind)
		msg := e.Message
		if limit := innerW - 23; limit > 0 && len(msg) > limit {
			msg = msg[:limit] + "..."
		}
		lines = append(lines, ts+" "+kind+" "+msg)
	}

	more := ""
	if m.Offset > 0 {
		more = theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d more", m.Offset))
	}
	return panel.Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), more, help))
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case "conn":
		return theme.ColorConnecting
	case "err":
		return theme.ColorDanger
	case "cap":
		return theme.ColorScreenshot
	case "msg":
		return theme.ColorAssistant
	default:
		return theme.ColorDimmed
	}
}
