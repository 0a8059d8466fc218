package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/forgeworks/appforge/internal/progress"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case StreamClosedMsg:
		m.closeErr = msg.Err
		if !m.done {
			m.appendLog("event stream closed")
		}
		return m, nil

	case EventMsg:
		ev := progress.Event(msg)
		if m.runID != "" && ev.RunID != m.runID {
			return m, waitForEvent(m.events)
		}
		m.apply(ev)
		if m.done {
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)
	}

	return m, nil
}

func (m *Model) apply(ev progress.Event) {
	switch ev.Type {
	case progress.EventStageStart:
		if r := m.row(ev); r != nil {
			r.status = "running"
			r.started = ev.Time
		}
		m.appendLog(fmt.Sprintf("%s started", ev.Stage))

	case progress.EventStageDone:
		if r := m.row(ev); r != nil {
			r.status = "done"
			r.finished = ev.Time
		}
		m.appendLog(fmt.Sprintf("%s done", ev.Stage))

	case progress.EventLoopIteration:
		if r := m.row(ev); r != nil {
			r.attempt = ev.Attempt
			r.detail = iterationDetail(ev.Payload)
		}
		m.appendLog(fmt.Sprintf("%s iteration %d %s", ev.Stage, ev.Attempt, iterationDetail(ev.Payload)))

	case progress.EventLoopDone:
		if r := m.row(ev); r != nil {
			r.status = "done"
			r.finished = ev.Time
		}
		m.appendLog(fmt.Sprintf("%s finished after %d iteration(s)", ev.Stage, ev.Attempt))

	case progress.EventRunComplete:
		m.done = true
		m.appendLog("run complete")

	case progress.EventRunError:
		m.done = true
		m.failed = true
		if r := m.row(ev); r != nil {
			r.status = "failed"
		}
		if msg, ok := ev.Payload["reason"].(string); ok {
			m.errText = msg
		}
		m.appendLog("run failed: " + m.errText)
	}
}

func (m *Model) row(ev progress.Event) *stageRow {
	for i := range m.rows {
		if m.rows[i].stage == ev.Stage {
			return &m.rows[i]
		}
	}
	return nil
}

func iterationDetail(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if score, ok := payload["score"]; ok {
		return fmt.Sprintf("(trust %v, approved %v)", score, payload["approved"])
	}
	if passed, ok := payload["tests_passed"]; ok {
		return fmt.Sprintf("(passed %v, failed %v)", passed, payload["tests_failed"])
	}
	return ""
}

func (m *Model) appendLog(line string) {
	stamp := time.Now().Format("15:04:05")
	m.log = append(m.log, stamp+"  "+line)
	if len(m.log) > 200 {
		m.log = m.log[len(m.log)-200:]
	}
}
