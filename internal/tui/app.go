package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/witheez/eventatlas-capture-sub000/internal/bridge"
	"github.com/witheez/eventatlas-capture-sub000/internal/bundles"
	"github.com/witheez/eventatlas-capture-sub000/internal/server"
	"github.com/witheez/eventatlas-capture-sub000/internal/state"
	"github.com/witheez/eventatlas-capture-sub000/internal/types"
	"github.com/witheez/eventatlas-capture-sub000/internal/urlutil"
)

// --- Messages ---

type stateChangedMsg struct{}
type serverStoppedMsg struct{ err error }
type extensionMsg struct{ msg server.IncomingMsg }
type uploadDoneMsg struct{ item types.QueueItem }
type syncDoneMsg struct{ data *types.SyncData }

// filterCycle is the f-key rotation order.
var filterCycle = []types.FilterMode{
	types.FilterAll,
	types.FilterWithScreenshot,
	types.FilterWithoutScreenshot,
	types.FilterEdited,
	types.FilterMatched,
}

var filterNames = []string{"all", "with shot", "no shot", "edited", "matched"}

// sortNames indexes by types.SortMode.
var sortNames = []string{"created", "name", "pages"}

// --- Model ---

type Model struct {
	store *state.Store
	db    *sql.DB
	srv   *server.Server
	br    *bridge.Bridge

	view      ViewType
	tree      TreeModel
	detail    DetailModel
	queueView QueueModel
	searching bool
	width     int
	height    int
	err       error
}

func NewModel(store *state.Store, db *sql.DB, srv *server.Server, br *bridge.Bridge) Model {
	m := Model{
		store: store,
		db:    db,
		srv:   srv,
		br:    br,
	}
	m.tree = NewTreeModel(store.Bundles())
	fs := store.Filter()
	m.tree.Filter = fs.Filter
	m.tree.Sort = fs.Sort
	m.tree.Query = fs.Query
	return m
}

// Init starts the WebSocket server and the event listeners. Bridge dispatch
// happens inside Update so the bubbletea loop stays the store's only
// writer; commands only wait on channels or fetch over the network.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		startServer(m.srv),
		waitEvent(m.br, m.srv),
		waitChange(m.br),
	}
	if m.br.SyncStale() {
		cmds = append(cmds, fetchSync(m.br))
	}
	return tea.Batch(cmds...)
}

func startServer(srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		err := srv.ListenAndServe(context.Background())
		return serverStoppedMsg{err: err}
	}
}

// waitEvent blocks until the extension sends a message or an upload
// finishes; re-issued after each event so dispatch keeps flowing.
func waitEvent(br *bridge.Bridge, srv *server.Server) tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-srv.Messages():
			return extensionMsg{msg: msg}
		case item := <-br.Completions():
			return uploadDoneMsg{item: item}
		}
	}
}

// waitChange blocks on the bridge's change channel; re-issued after every
// stateChangedMsg so updates keep flowing.
func waitChange(br *bridge.Bridge) tea.Cmd {
	return func() tea.Msg {
		<-br.Changed()
		return stateChangedMsg{}
	}
}

// fetchSync pulls sync data off the event loop; the result is applied to
// the store in Update.
func fetchSync(br *bridge.Bridge) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return syncDoneMsg{data: br.FetchSync(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		treeWidth := m.width * TreeWidthPct / 100
		detailWidth := m.width - treeWidth - 3 // borders
		paneHeight := m.height - 5             // navbar + bottom bar
		m.tree.Width = treeWidth
		m.tree.Height = paneHeight
		m.detail.Width = detailWidth
		m.detail.Height = paneHeight
		m.queueView.Width = m.width - 2
		m.queueView.Height = paneHeight
		return m, nil

	case stateChangedMsg:
		m.rebuildTree()
		m.queueView.Clamp(len(m.br.Queue().Items()))
		return m, waitChange(m.br)

	case extensionMsg:
		m.br.Handle(context.Background(), msg.msg)
		m.rebuildTree()
		return m, waitEvent(m.br, m.srv)

	case uploadDoneMsg:
		m.br.ApplyCompletion(msg.item)
		m.rebuildTree()
		return m, waitEvent(m.br, m.srv)

	case syncDoneMsg:
		m.br.ApplySync(msg.data)
		m.rebuildTree()
		return m, nil

	case serverStoppedMsg:
		m.err = msg.err
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKey(msg)
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.view == ViewBundles {
			m.view = ViewQueue
			m.store.SetView(types.ViewModeQueue)
		} else {
			m.view = ViewBundles
			m.store.SetView(types.ViewModeBundles)
		}
		return m, nil
	case "s":
		return m, fetchSync(m.br)
	}

	if m.view == ViewQueue {
		return m.handleQueueKey(msg)
	}
	return m.handleBundleKey(msg)
}

// handleSearchKey edits the search query until enter accepts it or esc
// clears it.
func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.searching = false
		m.setQuery("")
		m.store.PersistFilter(m.db)
	case tea.KeyEnter:
		m.searching = false
		m.store.PersistFilter(m.db)
	case tea.KeyBackspace:
		if q := []rune(m.tree.Query); len(q) > 0 {
			m.setQuery(string(q[:len(q)-1]))
		}
	case tea.KeyRunes, tea.KeySpace:
		m.setQuery(m.tree.Query + string(msg.Runes))
	}
	return m, nil
}

func (m *Model) setQuery(q string) {
	m.tree.SetQuery(q)
	fs := m.store.Filter()
	fs.Query = q
	m.store.SetFilter(fs)
}

func (m Model) handleBundleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.tree.MoveUp()
		m.detail.ResetScroll()
		m.syncSelection()
	case "down", "j":
		m.tree.MoveDown()
		m.detail.ResetScroll()
		m.syncSelection()
	case "enter":
		m.tree.Toggle()
		m.store.Persist(m.db)
	case "h":
		m.tree.CollapseOrParent()
	case "l":
		m.tree.ExpandOrEnter()
	case "pgup":
		m.detail.ScrollUp()
	case "pgdown":
		m.detail.ScrollDown()
	case "f":
		next := filterCycle[0]
		for i, f := range filterCycle {
			if f == m.tree.Filter {
				next = filterCycle[(i+1)%len(filterCycle)]
				break
			}
		}
		m.tree.SetFilter(next)
		fs := m.store.Filter()
		fs.Filter = next
		m.store.SetFilter(fs)
		m.store.PersistFilter(m.db)
	case "o":
		fs := m.store.Filter()
		fs.Sort = (fs.Sort + 1) % types.SortMode(len(sortNames))
		m.store.SetFilter(fs)
		m.store.PersistFilter(m.db)
		m.tree.Sort = fs.Sort
	case "/":
		m.searching = true
	case "x":
		node := m.tree.SelectedNode()
		if node == nil {
			return m, nil
		}
		if node.Capture != nil {
			if bid := m.bundleIDFor(node.Capture.ID); bid != "" {
				bundles.RemoveCapture(m.store, bid, node.Capture.ID)
			}
		} else if node.Bundle != nil {
			bundles.DeleteBundle(m.store, node.Bundle.ID)
		}
		m.store.Persist(m.db)
		m.rebuildTree()
	}
	return m, nil
}

func (m Model) handleQueueKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	items := m.br.Queue().Items()
	switch msg.String() {
	case "up", "k":
		m.queueView.MoveUp()
	case "down", "j":
		m.queueView.MoveDown(len(items))
	case "r":
		if item := m.queueView.Selected(items); item != nil && item.Status == types.StatusFailed {
			m.br.Queue().Retry(item.ID)
		}
	case "x":
		if item := m.queueView.Selected(items); item != nil {
			m.br.Queue().Remove(item.ID)
			m.queueView.Clamp(len(items) - 1)
		}
	}
	return m, nil
}

// syncSelection mirrors the tree cursor into the store so other surfaces
// see the same selection.
func (m *Model) syncSelection() {
	node := m.tree.SelectedNode()
	if node == nil {
		m.store.SetSelectedBundleID("")
		m.store.SetSelectedPageID("")
		return
	}
	if node.Bundle != nil {
		m.store.SetSelectedBundleID(node.Bundle.ID)
		m.store.SetSelectedPageID("")
		return
	}
	m.store.SetSelectedPageID(node.Capture.ID)
	m.store.SetSelectedBundleID(m.bundleIDFor(node.Capture.ID))
}

func (m Model) bundleIDFor(captureID string) string {
	for _, b := range m.store.Bundles() {
		for _, c := range b.Pages {
			if c.ID == captureID {
				return b.ID
			}
		}
	}
	return ""
}

func (m *Model) rebuildTree() {
	oldCursor := m.tree.Cursor
	oldOffset := m.tree.Offset
	oldExpanded := m.tree.Expanded
	oldFilter := m.tree.Filter
	oldSort := m.tree.Sort
	oldQuery := m.tree.Query
	oldSavedExpanded := m.tree.SavedExpanded

	m.tree = NewTreeModel(m.store.Bundles())
	m.tree.Width = m.width * TreeWidthPct / 100
	m.tree.Height = m.height - 5
	m.tree.Filter = oldFilter
	m.tree.Sort = oldSort
	m.tree.Query = oldQuery
	m.tree.SavedExpanded = oldSavedExpanded
	if ev := m.store.Matched(); ev != nil {
		m.tree.MatchedURL = urlutil.Normalize(ev.URL)
	}

	if oldExpanded != nil {
		for id, exp := range oldExpanded {
			m.tree.Expanded[id] = exp
		}
	}

	// Expand any new bundles while the view is narrowed
	if m.tree.narrowed() {
		for _, b := range m.store.Bundles() {
			if _, exists := oldExpanded[b.ID]; !exists {
				m.tree.Expanded[b.ID] = true
			}
		}
	}

	nodes := m.tree.VisibleNodes()
	if oldCursor >= len(nodes) {
		oldCursor = len(nodes) - 1
	}
	if oldCursor < 0 {
		oldCursor = 0
	}
	m.tree.Cursor = oldCursor
	m.tree.Offset = oldOffset
}

func (m Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("\n  Server error: %v\n\n  Press 'q' to quit.\n", m.err)
	}

	items := m.br.Queue().Items()
	stats := m.store.Stats()
	statsStr := fmt.Sprintf("%d bundles · %d pages", stats.TotalBundles, stats.TotalPages)
	if stats.WithScreenshot > 0 {
		statsStr += fmt.Sprintf(" · %d shots", stats.WithScreenshot)
	}
	if n := m.br.Queue().Pending(); n > 0 {
		statsStr += fmt.Sprintf(" · %d uploading", n)
	}
	navbar := renderNavbar(m.view, m.srv.Connected(), [2]int{stats.TotalPages, len(items)}, statsStr, m.width)

	var body string
	if m.view == ViewQueue {
		queueBorder := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Width(m.queueView.Width).
			Height(m.queueView.Height)
		body = queueBorder.Render(m.queueView.View(items))
	} else {
		treeBorder := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Width(m.tree.Width).
			Height(m.tree.Height)
		detailBorder := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Width(m.detail.Width).
			Height(m.detail.Height)

		var detailContent string
		if node := m.tree.SelectedNode(); node != nil {
			if node.Capture != nil {
				ev := m.store.Matched()
				if ev != nil && urlutil.Normalize(node.Capture.EffectiveURL()) == urlutil.Normalize(ev.URL) {
					detailContent = m.detail.ViewCaptureWithMatch(node.Capture, ev)
				} else {
					detailContent = m.detail.ViewCapture(node.Capture)
				}
			} else if node.Bundle != nil {
				detailContent = m.detail.ViewBundle(node.Bundle)
			}
		}
		left := treeBorder.Render(m.tree.View())
		right := detailBorder.Render(m.detail.ViewScrolled(detailContent))
		body = lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	}

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	var bottomText string
	if m.view == ViewQueue {
		bottomText = "↑↓/jk navigate · r retry · x remove · tab bundles · s sync · q quit"
	} else if m.searching {
		bottomText = fmt.Sprintf("search: %s▌ · enter accept · esc clear", m.tree.Query)
	} else {
		modeStr := fmt.Sprintf("[filter: %s · sort: %s]", filterNames[filterIndex(m.tree.Filter)], sortNames[m.tree.Sort])
		if m.tree.Query != "" {
			modeStr = fmt.Sprintf("[filter: %s · sort: %s · search: %s]", filterNames[filterIndex(m.tree.Filter)], sortNames[m.tree.Sort], m.tree.Query)
		}
		bottomText = "↑↓/jk navigate · h/l collapse/expand · f filter · o sort · / search · x delete · tab queue · s sync · q quit  " + modeStr
	}
	bottomBar := bottomBarStyle.Render(bottomText)

	return lipgloss.JoinVertical(lipgloss.Left, navbar, body, bottomBar)
}

func filterIndex(f types.FilterMode) int {
	for i, mode := range filterCycle {
		if mode == f {
			return i
		}
	}
	return 0
}
