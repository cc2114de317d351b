package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/witheez/eventatlas-capture-sub000/internal/bundles"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// TreeNode represents a visible row in the bundle tree.
type TreeNode struct {
	Bundle  *types.Bundle  // non-nil for bundle headers
	Capture *types.Capture // non-nil for page rows
}

// TreeModel manages the collapsible bundle tree.
type TreeModel struct {
	Bundles       []*types.Bundle
	Expanded      map[string]bool // bundle ID -> expanded
	SavedExpanded map[string]bool // snapshot before filter override
	Cursor        int
	Offset        int // scroll offset
	Width         int
	Height        int
	Filter        types.FilterMode
	Sort          types.SortMode
	Query         string // substring search over titles and URLs
	MatchedURL    string // normalized URL of the current matched event
}

func NewTreeModel(bundles []*types.Bundle) TreeModel {
	expanded := make(map[string]bool)
	for _, b := range bundles {
		expanded[b.ID] = b.Expanded
	}
	return TreeModel{
		Bundles:  bundles,
		Expanded: expanded,
	}
}

// SortedBundles returns the bundles in display order. The store's order is
// left alone; sorting is a view concern.
func (m TreeModel) SortedBundles() []*types.Bundle {
	out := make([]*types.Bundle, len(m.Bundles))
	copy(out, m.Bundles)
	switch m.Sort {
	case types.SortByName:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	case types.SortByPageCount:
		sort.SliceStable(out, func(i, j int) bool {
			return len(out[i].Pages) > len(out[j].Pages)
		})
	}
	return out
}

// VisibleNodes returns the flat list of currently visible nodes.
func (m TreeModel) VisibleNodes() []TreeNode {
	var nodes []TreeNode
	for _, b := range m.SortedBundles() {
		nodes = append(nodes, TreeNode{Bundle: b})
		if m.Expanded[b.ID] {
			for _, c := range b.Pages {
				if m.matchesFilter(c) {
					nodes = append(nodes, TreeNode{Capture: c})
				}
			}
		}
	}
	return nodes
}

func (m TreeModel) matchesFilter(c *types.Capture) bool {
	if !m.matchesQuery(c) {
		return false
	}
	switch m.Filter {
	case types.FilterWithScreenshot:
		return c.Screenshot != ""
	case types.FilterWithoutScreenshot:
		return c.Screenshot == ""
	case types.FilterEdited:
		return c.EditedURL != "" || c.EditedTitle != ""
	case types.FilterMatched:
		return m.MatchedURL != "" && urlutil.Normalize(c.EffectiveURL()) == m.MatchedURL
	default:
		return true
	}
}

func (m TreeModel) matchesQuery(c *types.Capture) bool {
	if m.Query == "" {
		return true
	}
	q := strings.ToLower(m.Query)
	return strings.Contains(strings.ToLower(c.EffectiveTitle()), q) ||
		strings.Contains(strings.ToLower(c.EffectiveURL()), q)
}

// narrowed reports whether a filter or search query is hiding pages.
func (m TreeModel) narrowed() bool {
	return m.Filter != types.FilterAll || m.Query != ""
}

// SetFilter changes the active filter and manages expanded-state save/restore.
func (m *TreeModel) SetFilter(f types.FilterMode) {
	wasNarrowed := m.narrowed()
	m.Filter = f
	m.applyNarrowing(wasNarrowed)
}

// SetQuery changes the search query; like filters, an active query forces
// every bundle open so matches are visible.
func (m *TreeModel) SetQuery(q string) {
	wasNarrowed := m.narrowed()
	m.Query = q
	m.applyNarrowing(wasNarrowed)
}

func (m *TreeModel) applyNarrowing(wasNarrowed bool) {
	if m.narrowed() {
		if !wasNarrowed {
			// Save current expanded state before overriding.
			m.SavedExpanded = make(map[string]bool, len(m.Expanded))
			for id, exp := range m.Expanded {
				m.SavedExpanded[id] = exp
			}
		}
		// Force all bundles expanded.
		for _, b := range m.Bundles {
			m.Expanded[b.ID] = true
		}
	} else if m.SavedExpanded != nil {
		// Restore saved state when the last narrowing is cleared.
		for id, exp := range m.SavedExpanded {
			m.Expanded[id] = exp
		}
		m.SavedExpanded = nil
	}

	m.Cursor = 0
	m.Offset = 0
}

// SelectedNode returns the currently selected node, or nil.
func (m TreeModel) SelectedNode() *TreeNode {
	nodes := m.VisibleNodes()
	if m.Cursor >= 0 && m.Cursor < len(nodes) {
		return &nodes[m.Cursor]
	}
	return nil
}

// MoveUp moves the cursor up.
func (m *TreeModel) MoveUp() {
	if m.Cursor > 0 {
		m.Cursor--
	}
	if m.Cursor < m.Offset {
		m.Offset = m.Cursor
	}
}

// MoveDown moves the cursor down.
func (m *TreeModel) MoveDown() {
	nodes := m.VisibleNodes()
	if m.Cursor < len(nodes)-1 {
		m.Cursor++
	}
	visibleRows := m.Height - 2 // account for padding
	if visibleRows < 1 {
		visibleRows = 1
	}
	if m.Cursor >= m.Offset+visibleRows {
		m.Offset = m.Cursor - visibleRows + 1
	}
}

// Toggle expands/collapses the selected bundle.
func (m *TreeModel) Toggle() {
	node := m.SelectedNode()
	if node == nil || node.Bundle == nil {
		return
	}
	next := !m.Expanded[node.Bundle.ID]
	m.Expanded[node.Bundle.ID] = next
	node.Bundle.Expanded = next
}

// CollapseOrParent collapses the selected bundle if expanded, or jumps to
// the parent bundle header if the cursor is on a page.
func (m *TreeModel) CollapseOrParent() {
	node := m.SelectedNode()
	if node == nil {
		return
	}
	if node.Bundle != nil {
		if m.Expanded[node.Bundle.ID] {
			m.Expanded[node.Bundle.ID] = false
			node.Bundle.Expanded = false
		}
		return
	}
	nodes := m.VisibleNodes()
	for i := m.Cursor - 1; i >= 0; i-- {
		if nodes[i].Bundle != nil {
			m.Cursor = i
			if m.Cursor < m.Offset {
				m.Offset = m.Cursor
			}
			return
		}
	}
}

// ExpandOrEnter expands the selected bundle if collapsed, or moves into the
// first child page if already expanded.
func (m *TreeModel) ExpandOrEnter() {
	node := m.SelectedNode()
	if node == nil || node.Bundle == nil {
		return
	}
	if !m.Expanded[node.Bundle.ID] {
		m.Expanded[node.Bundle.ID] = true
		node.Bundle.Expanded = true
		return
	}
	nodes := m.VisibleNodes()
	if m.Cursor+1 < len(nodes) && nodes[m.Cursor+1].Capture != nil {
		m.Cursor++
		visibleRows := m.Height - 2
		if visibleRows < 1 {
			visibleRows = 1
		}
		if m.Cursor >= m.Offset+visibleRows {
			m.Offset = m.Cursor - visibleRows + 1
		}
	}
}

// View renders the tree.
func (m TreeModel) View() string {
	nodes := m.VisibleNodes()
	if len(nodes) == 0 {
		return "No captures yet."
	}

	visibleRows := m.Height
	if visibleRows < 1 {
		visibleRows = 20
	}

	var b strings.Builder
	end := m.Offset + visibleRows
	if end > len(nodes) {
		end = len(nodes)
	}

	cursorStyle := lipgloss.NewStyle().Bold(true).Reverse(true)
	shotStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))     // green
	editStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))    // orange
	matchStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("33"))    // blue
	bundleStyle := lipgloss.NewStyle().Bold(true)
	fullStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("196"))    // red

	for i := m.Offset; i < end; i++ {
		node := nodes[i]
		var line string

		if node.Bundle != nil {
			icon := "▶"
			if m.Expanded[node.Bundle.ID] {
				icon = "▼"
			}
			var label string
			if !m.narrowed() {
				label = fmt.Sprintf("%s %s (%d pages)", icon, node.Bundle.Name, len(node.Bundle.Pages))
			} else {
				matched := 0
				for _, c := range node.Bundle.Pages {
					if m.matchesFilter(c) {
						matched++
					}
				}
				label = fmt.Sprintf("%s %s (%d/%d pages)", icon, node.Bundle.Name, matched, len(node.Bundle.Pages))
			}
			line = bundleStyle.Render(label)
			if len(node.Bundle.Pages) >= bundles.MaxPagesPerBundle {
				line += " " + fullStyle.Render("full")
			}
		} else if node.Capture != nil {
			prefix := "  "
			var markers []string
			if node.Capture.Screenshot != "" {
				markers = append(markers, shotStyle.Render("◉"))
			}
			if node.Capture.EditedURL != "" || node.Capture.EditedTitle != "" {
				markers = append(markers, editStyle.Render("✎"))
			}
			if m.MatchedURL != "" && urlutil.Normalize(node.Capture.EffectiveURL()) == m.MatchedURL {
				markers = append(markers, matchStyle.Render("◆"))
			}

			marker := ""
			if len(markers) > 0 {
				marker = strings.Join(markers, "") + " "
			}

			maxURLLen := m.Width - len(prefix) - len(marker) - 2
			if maxURLLen < 10 {
				maxURLLen = 10
			}
			url := node.Capture.EffectiveURL()
			if len(url) > maxURLLen {
				url = url[:maxURLLen-1] + "…"
			}
			line = prefix + marker + url
		}

		if i == m.Cursor {
			for len(line) < m.Width {
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
