package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/forgeworks/appforge/internal/domain"
	"github.com/forgeworks/appforge/internal/progress"
)

// EventMsg wraps one progress event delivered to the TUI
type EventMsg progress.Event

// StreamClosedMsg is sent when the event source goes away
type StreamClosedMsg struct{ Err error }

// stageRow tracks the display state of a single pipeline stage
type stageRow struct {
	stage    domain.Stage
	status   string // pending, running, done, failed
	attempt  int
	detail   string
	started  time.Time
	finished time.Time
}

// Model renders the live progress of one generation run
type Model struct {
	runID  string
	events <-chan progress.Event

	rows     []stageRow
	log      []string
	done     bool
	failed   bool
	errText  string
	width    int
	height   int
	started  time.Time
	closeErr error
}

// NewModel builds a watcher for the given run. Events arriving on the
// channel for other runs are ignored.
func NewModel(runID string, events <-chan progress.Event) Model {
	rows := make([]stageRow, 0, len(domain.StageOrder()))
	for _, s := range domain.StageOrder() {
		rows = append(rows, stageRow{stage: s, status: "pending"})
	}
	return Model{
		runID:   runID,
		events:  events,
		rows:    rows,
		started: time.Now(),
	}
}

// Init starts listening for events
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(ch <-chan progress.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg(ev)
	}
}
