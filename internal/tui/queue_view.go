package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
)

const progressBarWidth = 24

// QueueModel renders the upload queue pane.
type QueueModel struct {
	Cursor int
	Offset int
	Width  int
	Height int
}

// Clamp keeps the cursor inside the item list after the queue changes.
func (m *QueueModel) Clamp(n int) {
	if m.Cursor >= n {
		m.Cursor = n - 1
	}
	if m.Cursor < 0 {
		m.Cursor = 0
	}
	if m.Offset > m.Cursor {
		m.Offset = m.Cursor
	}
}

// MoveUp moves the cursor up.
func (m *QueueModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
}

// MoveDown moves the cursor down.
func (m *QueueModel) MoveDown(n int) {
	if m.Cursor < n-1 {
		m.Cursor++
	}
	visibleRows := m.Height - 2
	if visibleRows < 1 {
		visibleRows = 1
	}
	if m.Cursor >= m.Offset+visibleRows {
		m.Offset = m.Cursor - visibleRows + 1
	}
}

// Selected returns the item under the cursor, or nil.
func (m QueueModel) Selected(items []types.QueueItem) *types.QueueItem {
	if m.Cursor >= 0 && m.Cursor < len(items) {
		return &items[m.Cursor]
	}
	return nil
}

// View renders the queue list.
func (m QueueModel) View(items []types.QueueItem) string {
	if len(items) == 0 {
		return "No uploads in progress."
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}
	end := m.Offset + visibleRows
	if end > len(items) {
		end = len(items)
	}

	var b strings.Builder
	for i := m.Offset; i < end; i++ {
		item := items[i]
		name := item.EventName
		if name == "" {
			name = item.EventID
		}

		var line string
		switch item.Status {
		case types.StatusUploading:
			line = fmt.Sprintf("%s %3d%%  %s", progressBar(item.Progress), item.Progress, name)
		case types.StatusComplete:
			line = okStyle.Render("✓") + " done  " + name
		case types.StatusFailed:
			line = failStyle.Render("✗") + " " + name + "  " + failStyle.Render(item.Error) +
				dimStyle.Render("  (r to retry)")
		}

		if i == m.Cursor {
			for lipgloss.Width(line) < m.Width {
				line += " "
			}
			line = cursorStyle.Render(line)
		}
		b.WriteString(line)
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func progressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * progressBarWidth / 100
	barStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	return barStyle.Render(strings.Repeat("█", filled)) +
		strings.Repeat("░", progressBarWidth-filled)
}
