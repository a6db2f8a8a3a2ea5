package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"polarmon/internal/adapter/tui/theme"
)

// KeyHint is a single keybinding hint shown in the status bar.
type KeyHint struct {
	Key  string // e.g. "q"
	Desc string // e.g. "Quit"
}

// StatusBarModel renders the bottom bar: keybinding hints on the left,
// device and session info on the right.
type StatusBarModel struct {
	Hints   []KeyHint
	Device  string
	Session string
	Extra   string // transient status text (e.g. "Reconnecting...")
	width   int
}

// NewStatusBar creates an empty status bar.
func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

// SetWidth updates the available width.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// View renders the status bar as a single line.
func (m StatusBarModel) View() string {
	var hints []string
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var parts []string
	if m.Device != "" {
		parts = append(parts, m.Device)
	}
	if m.Session != "" {
		parts = append(parts, m.Session)
	}
	right := theme.TextMuted.Render(strings.Join(parts, " • "))
	if m.Extra != "" {
		if right != "" {
			right += "  "
		}
		right += theme.TextWarning.Render(m.Extra)
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return theme.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}
