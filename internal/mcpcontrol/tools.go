package mcpcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"devctl/internal/reporting"
	"devctl/pkg/logging"
)

const defaultLogLines = 50

// Tools implements the MCP tool handlers.
type Tools struct {
	store   *reporting.StateStore
	tail    *reporting.LogTail
	stopper Stopper
}

// NewTools creates the tool handlers.
func NewTools(store *reporting.StateStore, tail *reporting.LogTail, stopper Stopper) *Tools {
	return &Tools{store: store, tail: tail, stopper: stopper}
}

// ServerTools returns every tool with its handler.
func (t *Tools) ServerTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("devctl_status",
				mcp.WithDescription("Show the lifecycle state, supervised processes and tunnel address"),
			),
			Handler: t.HandleStatus,
		},
		{
			Tool: mcp.NewTool("devctl_logs",
				mcp.WithDescription("Show the most recent output lines of a process"),
				mcp.WithString("process",
					mcp.Description("Process name; omit to list the processes with output"),
				),
				mcp.WithNumber("lines",
					mcp.Description("Number of lines to return (default 50)"),
				),
			),
			Handler: t.HandleLogs,
		},
		{
			Tool: mcp.NewTool("devctl_stop",
				mcp.WithDescription("Stop every supervised process and end the run"),
			),
			Handler: t.HandleStop,
		},
	}
}

type processStatus struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	Port     int    `json:"port,omitempty"`
	Status   string `json:"status"`
	Healthy  *bool  `json:"healthy,omitempty"`
	ExitCode int    `json:"exitCode,omitempty"`
	Uptime   string `json:"uptime,omitempty"`
}

type statusResult struct {
	RunID      string          `json:"runId"`
	State      string          `json:"state"`
	Processes  []processStatus `json:"processes"`
	TunnelURL  string          `json:"tunnelUrl,omitempty"`
	TunnelNote string          `json:"tunnelNote,omitempty"`
	Warnings   []string        `json:"warnings,omitempty"`
}

// HandleStatus reports the current snapshot as JSON.
func (t *Tools) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := t.store.Snapshot()
	res := statusResult{
		RunID:      snap.RunID,
		State:      snap.State,
		Processes:  []processStatus{},
		TunnelURL:  snap.TunnelURL,
		TunnelNote: snap.TunnelNote,
		Warnings:   snap.Warnings,
	}
	for _, p := range snap.Processes {
		ps := processStatus{
			Name:     p.Name,
			PID:      p.PID,
			Port:     p.Port,
			Status:   string(p.Status),
			Healthy:  p.Healthy,
			ExitCode: p.ExitCode,
		}
		if p.Status == reporting.ProcessRunning && !p.StartedAt.IsZero() {
			ps.Uptime = time.Since(p.StartedAt).Round(time.Second).String()
		}
		res.Processes = append(res.Processes, ps)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode status: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// HandleLogs returns recent lines of one process.
func (t *Tools) HandleLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := req.Params.Arguments.(map[string]interface{})
	process, _ := args["process"].(string)
	if process == "" {
		sources := t.tail.Sources()
		if len(sources) == 0 {
			return mcp.NewToolResultText("no process output yet"), nil
		}
		return mcp.NewToolResultText("processes with output: " + strings.Join(sources, ", ")), nil
	}

	n := defaultLogLines
	if v, ok := args["lines"].(float64); ok {
		if v < 1 {
			return mcp.NewToolResultError("lines must be at least 1"), nil
		}
		n = int(v)
	}

	lines := t.tail.Lines(process, n)
	if lines == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no output recorded for process %q", process)), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

// HandleStop submits a stop request; teardown proceeds asynchronously.
func (t *Tools) HandleStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.stopper == nil {
		return mcp.NewToolResultError("stop is not available"), nil
	}
	logging.Info("MCP", "Stop requested by MCP client")
	t.stopper.Stop()
	return mcp.NewToolResultText("stop requested, current state: " + t.store.State()), nil
}
