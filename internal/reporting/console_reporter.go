package reporting

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// processPalette colours process prefixes, assigned in order of first
// appearance.
var processPalette = []lipgloss.Color{"12", "13", "14", "10", "11", "9"}

// ConsoleReporter renders events as lines on a terminal: process output is
// prefixed with the padded process name, everything else is a status line.
type ConsoleReporter struct {
	out      io.Writer
	renderer *lipgloss.Renderer
	width    int
	verbose  bool

	mu     sync.Mutex
	colors map[string]lipgloss.Style

	statusStyle lipgloss.Style
	warnStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	urlStyle    lipgloss.Style
	dimStyle    lipgloss.Style
}

// NewConsoleReporter creates a reporter writing to out. names are the
// process names known up front; they fix the prefix width so columns line
// up from the first line.
func NewConsoleReporter(out io.Writer, names ...string) *ConsoleReporter {
	r := lipgloss.NewRenderer(out)
	c := &ConsoleReporter{
		out:         out,
		renderer:    r,
		width:       len("devctl"),
		colors:      make(map[string]lipgloss.Style),
		statusStyle: r.NewStyle().Bold(true),
		warnStyle:   r.NewStyle().Foreground(lipgloss.Color("11")),
		errorStyle:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		urlStyle:    r.NewStyle().Foreground(lipgloss.Color("14")).Underline(true),
		dimStyle:    r.NewStyle().Faint(true),
	}
	for _, n := range names {
		if w := runewidth.StringWidth(n); w > c.width {
			c.width = w
		}
	}
	return c
}

// SetVerbose includes debug-severity events such as step starts.
func (c *ConsoleReporter) SetVerbose(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = v
}

// Run renders events from sub until ctx is done or the subscription is
// closed.
func (c *ConsoleReporter) Run(ctx context.Context, sub *EventSubscription) {
	for {
		select {
		case <-ctx.Done():
			c.drain(sub)
			return
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			c.Render(ev)
		}
	}
}

// drain renders whatever is already buffered.
func (c *ConsoleReporter) drain(sub *EventSubscription) {
	for {
		select {
		case ev, ok := <-sub.Channel:
			if !ok {
				return
			}
			c.Render(ev)
		default:
			return
		}
	}
}

// Render writes a single event.
func (c *ConsoleReporter) Render(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case LogEvent:
		c.line(e.Source(), e.Line)
	case StateEvent:
		c.line("devctl", c.statusStyle.Render(e.To))
	case StepEvent:
		if e.Type() == EventTypeStepStarted && !c.verbose {
			return
		}
		text := e.String()
		if e.Err != nil {
			text = c.severityStyle(e.Severity()).Render(text)
		} else if e.Skipped {
			text = c.dimStyle.Render(text)
		}
		c.line("devctl", text)
	case TunnelEvent:
		text := "public address " + c.urlStyle.Render(e.URL)
		if e.Note != "" {
			text += c.dimStyle.Render(" (" + e.Note + ")")
		}
		c.line("tunnel", text)
	case WarningEvent:
		c.line(e.Source(), c.warnStyle.Render("warning: "+e.String()))
		if e.Remediation != "" {
			c.line(e.Source(), c.dimStyle.Render("  "+e.Remediation))
		}
	default:
		if ev.Severity() == SeverityDebug && !c.verbose {
			return
		}
		c.line(ev.Source(), c.severityStyle(ev.Severity()).Render(ev.String()))
	}
}

func (c *ConsoleReporter) severityStyle(s EventSeverity) lipgloss.Style {
	switch s {
	case SeverityWarn:
		return c.warnStyle
	case SeverityError:
		return c.errorStyle
	default:
		return c.renderer.NewStyle()
	}
}

// line writes "name | text" with name padded to the widest name seen.
func (c *ConsoleReporter) line(name, text string) {
	if w := runewidth.StringWidth(name); w > c.width {
		c.width = w
	}
	prefix := c.prefixStyle(name).Render(runewidth.FillRight(name, c.width))
	fmt.Fprintf(c.out, "%s | %s\n", prefix, strings.TrimRight(text, "\r\n"))
}

func (c *ConsoleReporter) prefixStyle(name string) lipgloss.Style {
	if st, ok := c.colors[name]; ok {
		return st
	}
	st := c.renderer.NewStyle().Foreground(processPalette[len(c.colors)%len(processPalette)])
	c.colors[name] = st
	return st
}
