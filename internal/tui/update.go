package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"devctl/internal/reporting"
	"devctl/pkg/logging"
)

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

type eventMsg struct{ event reporting.Event }

type eventsClosedMsg struct{}

type logEntryMsg struct{ entry logging.LogEntry }

type clearStatusMsg struct{}

type tickMsg time.Time

func waitForEvent(sub *reporting.EventSubscription) tea.Cmd {
	if sub == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-sub.Channel
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

func waitForLog(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return nil
		}
		return logEntryMsg{entry: entry}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.sub), waitForLog(m.logCh), m.spinner.Tick, tick())
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		quit := m.apply(msg.event)
		m.refresh()
		if quit {
			return m, tea.Quit
		}
		return m, waitForEvent(m.sub)

	case eventsClosedMsg:
		m.done = true
		return m, tea.Quit

	case logEntryMsg:
		e := msg.entry
		text := fmt.Sprintf("%s [%s] %s", e.Level, e.Subsystem, e.Message)
		if e.Err != nil {
			text += ": " + e.Err.Error()
		}
		m.appendLine(internalSource, text)
		m.refresh()
		return m, waitForLog(m.logCh)

	case clearStatusMsg:
		m.status = ""
		return m, nil

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// apply folds ev into the model and reports whether the run is over.
func (m *Model) apply(ev reporting.Event) bool {
	if m.store != nil {
		m.store.Apply(ev)
	}
	if m.tail != nil {
		m.tail.Observe(ev)
	}

	switch e := ev.(type) {
	case reporting.LogEvent:
		m.appendLine(e.Source(), e.Line)
	case reporting.ProcessEvent:
		m.addSource(e.Process)
	case reporting.WarningEvent:
		m.appendLine(e.Source(), IconWarning+" "+e.String())
	case reporting.StateEvent:
		if e.To == "Stopped" {
			m.done = true
			return true
		}
	}
	return false
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.stopping {
			// second request: leave the dashboard, the run still tears down
			return m, tea.Quit
		}
		m.stopping = true
		m.status = "stopping, press q again to leave the dashboard"
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()
		return m, nil

	case key.Matches(msg, m.keys.Next):
		m.selected++
		if m.selected >= len(m.sources) {
			m.selected = -1
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Prev):
		m.selected--
		if m.selected < -1 {
			m.selected = len(m.sources) - 1
		}
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.Follow):
		m.follow = !m.follow
		if m.follow {
			m.logView.GotoBottom()
		}
		return m, nil

	case key.Matches(msg, m.keys.CopyLogs):
		var b strings.Builder
		for _, l := range m.visibleLines() {
			fmt.Fprintf(&b, "%s | %s\n", l.source, l.text)
		}
		return m.copy(b.String(), "logs copied to clipboard")

	case key.Matches(msg, m.keys.CopyURL):
		url := ""
		if m.store != nil {
			url = m.store.Snapshot().TunnelURL
		}
		if url == "" || !strings.HasPrefix(url, "http") {
			m.status = "no tunnel address yet"
			return m, clearStatusAfter(statusDuration)
		}
		return m.copy(url, "tunnel address copied")

	case key.Matches(msg, m.keys.Up, m.keys.Down, m.keys.PageUp, m.keys.PageDown):
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		m.follow = m.logView.AtBottom()
		return m, cmd
	}
	return m, nil
}

func (m Model) copy(text, ok string) (tea.Model, tea.Cmd) {
	if err := writeClipboard(text); err != nil {
		logging.Warn("TUI", "Copy to clipboard failed: %v", err)
		m.status = "copy failed: " + err.Error()
	} else {
		m.status = ok
	}
	return m, clearStatusAfter(statusDuration)
}
