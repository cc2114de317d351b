package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// DetailModel shows information about the selected item.
type DetailModel struct {
	Width      int
	Height     int
	Scroll     int    // scroll offset
	ContentLen int    // total lines in content
}

// ScrollUp adjusts the scroll offset upward.
func (m *DetailModel) ScrollUp() {
	if m.Scroll > 0 {
		m.Scroll--
	}
}

// ScrollDown adjusts the scroll offset downward.
func (m *DetailModel) ScrollDown() {
	if m.Scroll < m.ContentLen-m.Height {
		m.Scroll++
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}
}

// ResetScroll resets the scroll offset to 0.
func (m *DetailModel) ResetScroll() {
	m.Scroll = 0
}

func (m DetailModel) ViewCapture(c *types.Capture) string {
	if c == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	editStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	var b strings.Builder

	b.WriteString(labelStyle.Render("Title") + "\n")
	title := c.EffectiveTitle()
	if len(title) > m.Width-2 {
		title = title[:m.Width-3] + "…"
	}
	b.WriteString(valueStyle.Render(title))
	if c.EditedTitle != "" {
		b.WriteString(" " + editStyle.Render("(edited)"))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("URL") + "\n")
	url := c.EffectiveURL()
	for len(url) > m.Width-2 {
		b.WriteString(valueStyle.Render(url[:m.Width-2]) + "\n")
		url = url[m.Width-2:]
	}
	b.WriteString(valueStyle.Render(url))
	if c.EditedURL != "" {
		b.WriteString(" " + editStyle.Render("(edited)"))
	}
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("Captured") + "\n")
	b.WriteString(valueStyle.Render(relativeAge(c.CapturedAt)) + "\n\n")

	var parts []string
	if c.Screenshot != "" {
		parts = append(parts, "screenshot")
	}
	if c.Text != "" {
		parts = append(parts, fmt.Sprintf("text (%s)", urlutil.FormatBytes(int64(len(c.Text)))))
	}
	if len(c.Images) > 0 {
		parts = append(parts, fmt.Sprintf("%d images", len(c.Images)))
	}
	if len(parts) > 0 {
		b.WriteString(labelStyle.Render("Content") + "\n")
		b.WriteString(valueStyle.Render(strings.Join(parts, " · ")) + "\n\n")
	}

	if len(c.Metadata) > 0 {
		b.WriteString(labelStyle.Render("Metadata") + "\n")
		keys := make([]string, 0, len(c.Metadata))
		for k := range c.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(valueStyle.Render(fmt.Sprintf("%s: %s", k, c.Metadata[k])) + "\n")
		}
		b.WriteString("\n")
	}

	if c.Text != "" {
		b.WriteString(labelStyle.Render("Text") + "\n")
		b.WriteString(wrap(c.Text, m.Width-2, 30))
	}

	return b.String()
}

// ViewCaptureWithMatch renders capture info plus the correlated event.
func (m *DetailModel) ViewCaptureWithMatch(c *types.Capture, ev *types.MatchedEvent) string {
	base := m.ViewCapture(c)
	if ev == nil {
		return base
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	valueStyle := lipgloss.NewStyle()

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n" + labelStyle.Render("Matched Event") + "\n")
	b.WriteString(valueStyle.Render(ev.Name) + "\n")
	if ev.Date != "" {
		b.WriteString(valueStyle.Render("Date: "+ev.Date) + "\n")
	}
	if len(ev.Distances) > 0 {
		dists := make([]string, 0, len(ev.Distances))
		for _, d := range ev.Distances {
			dists = append(dists, fmt.Sprintf("%dk", d))
		}
		b.WriteString(valueStyle.Render("Distances: "+strings.Join(dists, ", ")) + "\n")
	}
	if len(ev.Tags) > 0 {
		b.WriteString(valueStyle.Render("Tags: "+strings.Join(ev.Tags, ", ")) + "\n")
	}
	return b.String()
}

// ViewScrolled applies scroll offset and height truncation to the content string.
func (m *DetailModel) ViewScrolled(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	m.ContentLen = len(lines)

	maxScroll := m.ContentLen - m.Height
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.Scroll > maxScroll {
		m.Scroll = maxScroll
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}

	end := m.Scroll + m.Height
	if end > len(lines) {
		end = len(lines)
	}

	if m.Scroll >= len(lines) {
		return ""
	}

	return strings.Join(lines[m.Scroll:end], "\n")
}

func (m DetailModel) ViewBundle(b *types.Bundle) string {
	if b == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()

	var s strings.Builder

	s.WriteString(labelStyle.Render("Bundle") + "\n")
	s.WriteString(valueStyle.Render(b.Name) + "\n\n")

	s.WriteString(labelStyle.Render("Pages") + "\n")
	s.WriteString(valueStyle.Render(fmt.Sprintf("%d", len(b.Pages))) + "\n\n")

	s.WriteString(labelStyle.Render("Created") + "\n")
	s.WriteString(valueStyle.Render(relativeAge(b.CreatedAt)) + "\n")

	var shots, edited int
	for _, c := range b.Pages {
		if c.Screenshot != "" {
			shots++
		}
		if c.EditedURL != "" || c.EditedTitle != "" {
			edited++
		}
	}
	if shots+edited > 0 {
		s.WriteString("\n" + labelStyle.Render("Contents") + "\n")
		if shots > 0 {
			s.WriteString(fmt.Sprintf("  %d with screenshot\n", shots))
		}
		if edited > 0 {
			s.WriteString(fmt.Sprintf("  %d edited\n", edited))
		}
	}

	return s.String()
}

func relativeAge(t time.Time) string {
	age := time.Since(t)
	days := int(age.Hours() / 24)
	if days == 0 {
		hours := int(age.Hours())
		if hours == 0 {
			return "just now"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	return fmt.Sprintf("%d days ago", days)
}

// wrap rewraps text to the given width, keeping at most maxLines lines.
func wrap(text string, width, maxLines int) string {
	if width < 10 {
		width = 10
	}
	words := strings.Fields(text)
	var b strings.Builder
	line := ""
	lines := 0
	for _, w := range words {
		if line != "" && len(line)+1+len(w) > width {
			b.WriteString(line + "\n")
			line = ""
			lines++
			if lines >= maxLines {
				b.WriteString("…")
				return b.String()
			}
		}
		if line == "" {
			line = w
		} else {
			line += " " + w
		}
	}
	b.WriteString(line)
	return b.String()
}
