// Package mcpcontrol exposes a running devctl session to MCP clients.
//
// The server speaks MCP over SSE and offers three tools:
//
//   - devctl_status: lifecycle state, processes and tunnel address
//   - devctl_logs: the most recent output lines of one process
//   - devctl_stop: requests an orderly shutdown
//
// All reads go through the reporting.StateStore and reporting.LogTail fed
// by the event stream, so the server never touches the controller's state.
package mcpcontrol
