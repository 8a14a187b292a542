// Package tui is the terminal dashboard behind `atracker top`. It polls the
// local API and renders the current window, today's focus, category totals
// and the busiest apps.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"atracker/internal/aggregate"
	"atracker/internal/api"
)

// Source is the API surface the dashboard polls.
type Source interface {
	Current(ctx context.Context) (*api.CurrentView, error)
	AppSummary(ctx context.Context, day string) ([]aggregate.Group, error)
	CategoryTotals(ctx context.Context, day string) ([]aggregate.CategoryTotal, error)
	Focus(ctx context.Context, day string) (*aggregate.FocusReport, error)
	Pause(ctx context.Context, minutes int) error
	Resume(ctx context.Context) error
}

// Snapshot is one poll of the API.
type Snapshot struct {
	Current *api.CurrentView
	Apps    []aggregate.Group
	Totals  []aggregate.CategoryTotal
	Focus   *aggregate.FocusReport
	At      time.Time
}

type tickMsg time.Time

type snapshotMsg struct {
	snap *Snapshot
	err  error
}

type actionMsg struct {
	err error
}

// Model is the bubbletea model.
type Model struct {
	src      Source
	interval time.Duration
	timeout  time.Duration

	width  int
	height int

	snap     *Snapshot
	err      error
	showHelp bool
	status   string
}

// NewModel creates a dashboard refreshing every interval.
func NewModel(src Source, interval time.Duration) Model {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return Model{src: src, interval: interval, timeout: 3 * time.Second}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(m.interval), fetch(m.src, m.timeout))
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetch(src Source, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		snap := &Snapshot{At: time.Now()}
		var err error
		if snap.Current, err = src.Current(ctx); err != nil {
			return snapshotMsg{err: err}
		}
		if snap.Apps, err = src.AppSummary(ctx, ""); err != nil {
			return snapshotMsg{err: err}
		}
		if snap.Totals, err = src.CategoryTotals(ctx, ""); err != nil {
			return snapshotMsg{err: err}
		}
		if snap.Focus, err = src.Focus(ctx, ""); err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{snap: snap}
	}
}

func togglePause(src Source, paused bool, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if paused {
			return actionMsg{err: src.Resume(ctx)}
		}
		return actionMsg{err: src.Pause(ctx, 0)}
	}
}

func (m Model) paused() bool {
	return m.snap != nil && m.snap.Current != nil && m.snap.Current.Paused
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if m.showHelp && msg.String() == "esc" {
				m.showHelp = false
				return m, nil
			}
			return m, tea.Quit
		case "?", "h":
			m.showHelp = !m.showHelp
		case "r":
			return m, fetch(m.src, m.timeout)
		case "p":
			if m.paused() {
				m.status = "resuming..."
			} else {
				m.status = "pausing..."
			}
			return m, togglePause(m.src, m.paused(), m.timeout)
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, tea.Batch(tick(m.interval), fetch(m.src, m.timeout))
	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
	case actionMsg:
		if msg.err != nil {
			m.status = "action failed: " + msg.err.Error()
		} else {
			m.status = ""
		}
		return m, fetch(m.src, m.timeout)
	}
	return m, nil
}

// Run starts the dashboard and blocks until the user quits or ctx ends.
func Run(ctx context.Context, src Source, interval time.Duration) error {
	p := tea.NewProgram(NewModel(src, interval), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// APISource adapts an API client to Source.
type APISource struct {
	*api.Client
}

// Pause discards the returned state.
func (s APISource) Pause(ctx context.Context, minutes int) error {
	_, err := s.Client.Pause(ctx, minutes)
	return err
}
