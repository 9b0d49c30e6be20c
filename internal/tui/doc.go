// Package tui provides the terminal dashboard of devctl up --tui.
//
// The dashboard is a Bubble Tea program that subscribes to the event bus of
// a run. It never drives the lifecycle itself: the only command it sends is
// Stop, when the user presses q or ctrl+c. It exits once the run reports
// Stopped or the event stream ends.
//
// Layout, top to bottom:
//
//   - header with the lifecycle state and run ID
//   - process table (status, pid, port, health, uptime)
//   - tunnel address and recent warnings, when present
//   - scrolling log viewport, either all processes or the selected one
//   - key help
package tui
