// Package theme provides the Lip Gloss color palette and reusable styles
// for the goblin TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Connection state colors.
var (
	ColorConnected    = lipgloss.Color("#22c55e")
	ColorConnecting   = lipgloss.Color("#2563eb")
	ColorReconnecting = lipgloss.Color("#d97706")
	ColorExhausted    = lipgloss.Color("#dc2626")
	ColorOffline      = lipgloss.Color("#4b5563")
)

// Transcript role colors.
var (
	ColorUser       = lipgloss.Color("#3b82f6")
	ColorAssistant  = lipgloss.Color("#a855f7")
	ColorScreenshot = lipgloss.Color("#06b6d4")
	ColorSystem     = lipgloss.Color("#9ca3af")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// StateColor returns the color for a connection state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "connected":
		return ColorConnected
	case "connecting":
		return ColorConnecting
	case "reconnecting":
		return ColorReconnecting
	case "exhausted":
		return ColorExhausted
	default:
		return ColorOffline
	}
}

// StateGlyph returns a Unicode glyph for a connection state name.
func StateGlyph(state string) string {
	switch state {
	case "connected":
		return "●"
	case "connecting", "reconnecting":
		return "◌"
	case "exhausted":
		return "✗"
	default:
		return "○"
	}
}

// RoleColor returns the label color for a transcript role.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "you":
		return ColorUser
	case "goblin":
		return ColorAssistant
	case "screen":
		return ColorScreenshot
	default:
		return ColorSystem
	}
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleCode = lipgloss.NewStyle().
		Foreground(ColorBright).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(ColorBorder).
		PaddingLeft(1)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
