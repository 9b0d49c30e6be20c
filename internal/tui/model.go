package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"

	"devctl/internal/reporting"
	"devctl/pkg/logging"
)

const (
	// maxLogLines bounds the combined log kept by the dashboard.
	maxLogLines = 2000
	// statusDuration is how long a status message stays visible.
	statusDuration = 3 * time.Second
	// internalSource labels devctl's own log entries.
	internalSource = "devctl"
)

// Stopper receives the stop request of the user.
type Stopper interface {
	Stop()
}

type logLine struct {
	source string
	text   string
}

// Model is the Bubble Tea model of the dashboard.
type Model struct {
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	logView viewport.Model

	ctrl  Stopper
	sub   *reporting.EventSubscription
	store *reporting.StateStore
	tail  *reporting.LogTail
	logCh <-chan logging.LogEntry

	width  int
	height int

	lines    []logLine
	sources  []string // log sources in order of first appearance
	selected int      // index into sources, -1 shows every source
	follow   bool

	status   string
	stopping bool
	done     bool

	now func() time.Time
}

// NewModel creates the dashboard model. Events from sub are folded into
// store and tail, which may be shared with other readers. logCh carries
// devctl's own log entries in TUI mode and may be nil.
func NewModel(ctrl Stopper, sub *reporting.EventSubscription, store *reporting.StateStore, tail *reporting.LogTail, logCh <-chan logging.LogEntry) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = stateStyle

	return Model{
		keys:     DefaultKeyMap(),
		help:     help.New(),
		spinner:  sp,
		logView:  viewport.New(80, 10),
		ctrl:     ctrl,
		sub:      sub,
		store:    store,
		tail:     tail,
		logCh:    logCh,
		selected: -1,
		follow:   true,
		now:      time.Now,
	}
}

// selectedSource returns the source whose logs are shown, or "" for all.
func (m Model) selectedSource() string {
	if m.selected < 0 || m.selected >= len(m.sources) {
		return ""
	}
	return m.sources[m.selected]
}

func (m *Model) addSource(name string) {
	for _, s := range m.sources {
		if s == name {
			return
		}
	}
	m.sources = append(m.sources, name)
}

func (m *Model) appendLine(source, text string) {
	m.addSource(source)
	m.lines = append(m.lines, logLine{source: source, text: text})
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
}

// visibleLines returns the log lines of the selected source.
func (m Model) visibleLines() []logLine {
	src := m.selectedSource()
	if src == "" {
		return m.lines
	}
	if m.tail != nil && src != internalSource {
		var out []logLine
		for _, l := range m.tail.Lines(src, 0) {
			out = append(out, logLine{source: src, text: l})
		}
		return out
	}
	var out []logLine
	for _, l := range m.lines {
		if l.source == src {
			out = append(out, l)
		}
	}
	return out
}
