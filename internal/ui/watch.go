package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	pbar "github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/hermesdl/hermesctl/internal/api"
	"github.com/hermesdl/hermesctl/internal/poll"
	"github.com/hermesdl/hermesctl/internal/progress"
	"github.com/hermesdl/hermesctl/internal/registry"
	"github.com/hermesdl/hermesctl/internal/repositories"
	"github.com/hermesdl/hermesctl/internal/shared"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	QueueView ViewState = iota
	HistoryView
)

// Canceller aborts a server-side download.
type Canceller interface {
	CancelDownload(ctx context.Context, id string) (*api.CancelResponse, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx        context.Context
	controller *poll.Controller
	reg        *registry.Registry
	tracker    *progress.Tracker
	client     Canceller
	history    *repositories.HistoryRepository
	logger     *log.Logger

	view      ViewState
	width     int
	height    int
	cursor    int
	tracked   []string
	latest    map[string]api.DownloadStatus
	recorded  map[string]bool
	fetchErr  error
	rows      []repositories.HistoryEntry
	bar       pbar.Model
	regEvents <-chan registry.Event
	regCancel func()
	help      help.Model
	keys      keyMap
	err       error
}

type snapshotMsg poll.Snapshot

type trackedMsg registry.Event

type historyMsg struct {
	entries []repositories.HistoryEntry
	err     error
}

type cancelDoneMsg struct {
	id  string
	err error
}

// NewModel creates a new TUI model with the provided dependencies. The
// history repository may be nil when no local cache is configured.
func NewModel(ctx context.Context, controller *poll.Controller, reg *registry.Registry, client Canceller, history *repositories.HistoryRepository, logger *log.Logger) *Model {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	events, cancel := reg.SubscribeEvents()
	return &Model{
		ctx:        ctx,
		controller: controller,
		reg:        reg,
		tracker:    progress.NewTracker(),
		client:     client,
		history:    history,
		logger:     logger,
		view:       QueueView,
		tracked:    reg.List(),
		latest:     make(map[string]api.DownloadStatus),
		recorded:   make(map[string]bool),
		bar:        pbar.New(pbar.WithDefaultGradient()),
		regEvents:  events,
		regCancel:  cancel,
		help:       help.New(),
		keys:       newKeyMap(),
	}
}

// Init starts the poll loop and begins listening for snapshots and tracked-set
// changes.
func (m *Model) Init() tea.Cmd {
	m.controller.Start(m.ctx)
	return tea.Batch(m.waitForSnapshot(), m.waitForTracked())
}

// Close releases the model's registry subscription and stops polling.
func (m *Model) Close() {
	m.regCancel()
	m.controller.Stop()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(msg.Width-30, 50)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case snapshotMsg:
		m.applySnapshot(poll.Snapshot(msg))
		return m, m.waitForSnapshot()

	case trackedMsg:
		m.tracked = m.reg.List()
		m.clampCursor()
		m.controller.Refresh()
		return m, m.waitForTracked()

	case historyMsg:
		m.rows = msg.entries
		m.err = msg.err
		m.clampCursor()
		return m, nil

	case cancelDoneMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to cancel %s: %w", msg.id, msg.err)
			return m, nil
		}
		m.controller.Refresh()
		return m, nil
	}

	return m, nil
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < m.rowCount()-1 {
			m.cursor++
		}
	case "r":
		if m.view == HistoryView {
			return m, m.loadHistory()
		}
		m.controller.Refresh()
	case "h":
		return m.toggleView()
	case "x":
		if m.view == QueueView {
			return m, m.cancelSelected()
		}
	case "d":
		if m.view == QueueView {
			m.untrackSelected()
		}
	}
	return m, nil
}

func (m *Model) toggleView() (tea.Model, tea.Cmd) {
	if m.view == QueueView {
		m.view = HistoryView
		m.cursor = 0
		m.controller.SetMode(poll.ViewHistory)
		return m, m.loadHistory()
	}
	m.view = QueueView
	m.cursor = 0
	m.err = nil
	m.controller.SetMode(poll.ViewQueue)
	return m, nil
}

func (m *Model) rowCount() int {
	if m.view == HistoryView {
		return len(m.rows)
	}
	return len(m.tracked)
}

func (m *Model) clampCursor() {
	if n := m.rowCount(); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// applySnapshot folds a poll result into the view: progress marks advance,
// and jobs that just reached a terminal status are recorded to history once.
func (m *Model) applySnapshot(snap poll.Snapshot) {
	m.fetchErr = snap.Err
	if snap.Err != nil {
		return
	}

	for _, item := range snap.Items {
		m.latest[item.DownloadID] = item
		display := m.tracker.Observe(item.DownloadID, progress.Observation{
			Status:  item.Status,
			Percent: item.Percent(),
		})

		if item.Status.Terminal() && !m.recorded[item.DownloadID] {
			m.recorded[item.DownloadID] = true
			if m.history != nil {
				if err := m.history.Record(&item, display); err != nil {
					m.logger.Warn("failed to record finished download", "id", item.DownloadID, "error", err)
				}
			}
		}
	}
}

func (m *Model) untrackSelected() {
	if m.cursor >= len(m.tracked) {
		return
	}
	id := m.tracked[m.cursor]
	if err := m.reg.Remove(id); err != nil {
		m.err = err
		return
	}
	m.tracker.Forget(id)
	m.tracked = m.reg.List()
	m.clampCursor()
}

func (m *Model) cancelSelected() tea.Cmd {
	if m.cursor >= len(m.tracked) {
		return nil
	}
	id := m.tracked[m.cursor]
	return func() tea.Msg {
		_, err := m.client.CancelDownload(m.ctx, id)
		return cancelDoneMsg{id: id, err: err}
	}
}

func (m *Model) loadHistory() tea.Cmd {
	return func() tea.Msg {
		if m.history == nil {
			return historyMsg{err: fmt.Errorf("no history database configured")}
		}
		entries, err := m.history.List("", 50)
		return historyMsg{entries: entries, err: err}
	}
}

func (m *Model) waitForSnapshot() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.controller.Snapshots()
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func (m *Model) waitForTracked() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.regEvents
		if !ok {
			return nil
		}
		return trackedMsg(ev)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.view == HistoryView {
		return m.renderHistory()
	}
	return m.renderQueue()
}

func (m *Model) renderQueue() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Tracked Downloads"))
	b.WriteString("\n\n")

	if len(m.tracked) == 0 {
		b.WriteString(styles.help.Render("Nothing tracked. Use 'hermesctl track add <id>' to follow a job."))
		b.WriteString("\n")
	}

	for i, id := range m.tracked {
		b.WriteString(m.renderJob(i, id))
		b.WriteString("\n")
	}

	if m.fetchErr != nil {
		b.WriteString("\n")
		b.WriteString(styles.warn.Render(fmt.Sprintf("Last refresh failed: %v", m.fetchErr)))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	helpKeys := []key.Binding{m.keys.refresh, m.keys.cancel, m.keys.untrack, m.keys.history, m.keys.quit}
	b.WriteString(m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderJob(i int, id string) string {
	marker := "  "
	if i == m.cursor {
		marker = "> "
	}

	item, known := m.latest[id]
	if !known {
		return fmt.Sprintf("%s%s  %s", marker, id, styles.help.Render("waiting for status..."))
	}

	label := StatusStyle(string(item.Status)).Render(string(item.Status))
	bar := m.bar.ViewAs(m.tracker.Display(id) / 100)

	line := fmt.Sprintf("%s%-12s %s  %s", marker, label, bar, item.Title())
	if item.Error != "" {
		line += "\n    " + styles.err.Render(item.Error)
	} else if item.Message != "" {
		line += "\n    " + styles.help.Render(item.Message)
	}
	return line
}

func (m *Model) renderHistory() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Download History"))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(styles.err.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n")
	} else if len(m.rows) == 0 {
		b.WriteString(styles.help.Render("No finished downloads recorded yet."))
		b.WriteString("\n")
	}

	for i, entry := range m.rows {
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		label := StatusStyle(string(entry.Status)).Render(string(entry.Status))
		title := entry.Title
		if title == "" {
			title = entry.ID
		}
		fmt.Fprintf(&b, "%s%-12s %6.1f%%  %s\n", marker, label, entry.Progress, title)
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}
