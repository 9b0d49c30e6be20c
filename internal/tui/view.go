package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"devctl/internal/reporting"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "starting devctl..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTop(),
		m.renderLogs(),
		m.renderFooter(),
	)
}

func (m Model) snapshot() reporting.Snapshot {
	if m.store == nil {
		return reporting.Snapshot{State: "Idle"}
	}
	return m.store.Snapshot()
}

// renderTop renders everything above the log panel.
func (m Model) renderTop() string {
	snap := m.snapshot()
	parts := []string{m.renderHeader(snap), m.renderProcesses(snap)}
	if extra := m.renderExtras(snap); extra != "" {
		parts = append(parts, extra)
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderHeader(snap reporting.Snapshot) string {
	state := snap.State
	switch state {
	case "Running", "Stopped":
	default:
		state = m.spinner.View() + " " + state
	}
	runID := snap.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	left := "devctl  " + stateStyle.Render(state)
	right := dimStyle.Render("run " + runID)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}
	return headerStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

var processColumns = []struct {
	title string
	width int
}{
	{"NAME", 14}, {"STATUS", 12}, {"PID", 8}, {"PORT", 7}, {"HEALTH", 10}, {"UPTIME", 10},
}

func (m Model) renderProcesses(snap reporting.Snapshot) string {
	var rows []string
	var header strings.Builder
	for _, c := range processColumns {
		header.WriteString(runewidth.FillRight(c.title, c.width))
	}
	rows = append(rows, tableHeaderStyle.Render(header.String()))

	if len(snap.Processes) == 0 {
		rows = append(rows, dimStyle.Render("no processes yet"))
	}
	selected := m.selectedSource()
	for _, p := range snap.Processes {
		row := m.processRow(p)
		if p.Name == selected {
			row = selectedRowStyle.Render(row)
		}
		rows = append(rows, row)
	}
	return panelStyle.Width(m.panelWidth()).Render(strings.Join(rows, "\n"))
}

func (m Model) processRow(p reporting.ProcessSnapshot) string {
	cell := func(s string, i int) string {
		return runewidth.FillRight(runewidth.Truncate(s, processColumns[i].width-1, "…"), processColumns[i].width)
	}

	var status string
	switch p.Status {
	case reporting.ProcessRunning:
		status = runningStyle.Render(cell(IconCheck+" running", 1))
	case reporting.ProcessStopped:
		status = stoppedStyle.Render(cell(IconStop+" stopped", 1))
	default:
		status = exitedStyle.Render(cell(fmt.Sprintf("%s exit %d", IconCross, p.ExitCode), 1))
	}

	port := "-"
	if p.Port > 0 {
		port = fmt.Sprint(p.Port)
	}
	healthText := "-"
	if p.Healthy != nil {
		if *p.Healthy {
			healthText = IconCheck + " ready"
		} else {
			healthText = IconWarning + " timeout"
		}
	} else if p.Status == reporting.ProcessRunning {
		healthText = IconHourglass
	}
	uptime := "-"
	if p.Status == reporting.ProcessRunning && !p.StartedAt.IsZero() {
		uptime = formatUptime(m.now().Sub(p.StartedAt))
	}

	return cell(p.Name, 0) + status + cell(fmt.Sprint(p.PID), 2) + cell(port, 3) + cell(healthText, 4) + cell(uptime, 5)
}

func (m Model) renderExtras(snap reporting.Snapshot) string {
	var lines []string
	if snap.TunnelURL != "" {
		line := IconLink + " tunnel " + urlStyle.Render(snap.TunnelURL)
		if snap.TunnelNote != "" {
			line += dimStyle.Render(" (" + snap.TunnelNote + ")")
		}
		lines = append(lines, line)
	}
	warnings := snap.Warnings
	if len(warnings) > 3 {
		warnings = warnings[len(warnings)-3:]
	}
	for _, w := range warnings {
		lines = append(lines, warnStyle.Render(IconWarning+" "+runewidth.Truncate(w, m.panelWidth()-4, "…")))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderLogs() string {
	title := "logs: all"
	if src := m.selectedSource(); src != "" {
		title = "logs: " + src
	}
	if !m.follow {
		title += dimStyle.Render("  (paused, f to follow)")
	}
	return panelStyle.Width(m.panelWidth()).Render(tableHeaderStyle.Render(title) + "\n" + m.logView.View())
}

func (m Model) renderFooter() string {
	footer := m.help.View(m.keys)
	if m.status != "" {
		footer = statusStyle.Render(m.status) + "  " + footer
	}
	return footer
}

func (m Model) panelWidth() int {
	w := m.width - 2
	if w < 20 {
		w = 20
	}
	return w
}

// resize fits the log viewport into the space left by the other sections.
func (m *Model) resize() {
	if m.width == 0 {
		return
	}
	used := lipgloss.Height(m.renderTop()) + lipgloss.Height(m.renderFooter()) + 3 // log panel border and title
	h := m.height - used
	if h < 3 {
		h = 3
	}
	m.logView.Width = m.panelWidth() - 4
	m.logView.Height = h
	m.refresh()
}

// refresh re-renders the log content and keeps following the tail.
func (m *Model) refresh() {
	width := m.logView.Width
	if width <= 0 {
		width = 80
	}
	srcWidth := 0
	for _, s := range m.sources {
		if w := runewidth.StringWidth(s); w > srcWidth {
			srcWidth = w
		}
	}

	var b strings.Builder
	for i, l := range m.visibleLines() {
		if i > 0 {
			b.WriteByte('\n')
		}
		line := runewidth.FillRight(l.source, srcWidth) + " | " + l.text
		b.WriteString(runewidth.Truncate(line, width, "…"))
	}
	m.logView.SetContent(b.String())
	if m.follow {
		m.logView.GotoBottom()
	}
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return d.String()
	}
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, mnt)
	}
	return fmt.Sprintf("%dm%02ds", mnt, s)
}
