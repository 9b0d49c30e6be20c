package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"devctl/internal/reporting"
	"devctl/pkg/logging"
)

// NewProgram creates the Bubble Tea program of the dashboard.
func NewProgram(m Model, opts ...tea.ProgramOption) *tea.Program {
	opts = append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)
	return tea.NewProgram(m, opts...)
}

// Run shows the dashboard until the run stops, the user leaves it or ctx
// is done.
func Run(ctx context.Context, ctrl Stopper, sub *reporting.EventSubscription, store *reporting.StateStore, tail *reporting.LogTail, logCh <-chan logging.LogEntry) error {
	p := NewProgram(NewModel(ctrl, sub, store, tail, logCh), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		// The program was killed because the run ended.
		return nil
	}
	return err
}
