package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType defines the type of event
type EventType string

const (
	// Lifecycle events
	EventTypeStateChanged EventType = "state.changed"
	EventTypeStepStarted  EventType = "step.started"
	EventTypeStepFinished EventType = "step.finished"

	// Process events
	EventTypeProcessStarted EventType = "process.started"
	EventTypeProcessExited  EventType = "process.exited"
	EventTypeProcessLog     EventType = "process.log"

	// Health events
	EventTypeHealthReady   EventType = "health.ready"
	EventTypeHealthTimeout EventType = "health.timeout"

	// Port events
	EventTypePortFreed    EventType = "port.freed"
	EventTypePortConflict EventType = "port.conflict"

	// Tunnel events
	EventTypeTunnelAddress EventType = "tunnel.address"

	// Non-fatal problems
	EventTypeWarning EventType = "warning"
)

// EventSeverity indicates the importance/severity of an event
type EventSeverity string

const (
	SeverityDebug EventSeverity = "debug"
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is the base interface for all events in the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Source returns the component or process that generated this event
	Source() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time

	// Severity returns the event severity
	Severity() EventSeverity

	// RunID identifies the devctl run the event belongs to
	RunID() string

	// String returns a human-readable description of the event
	String() string
}

// BaseEvent provides common event functionality
type BaseEvent struct {
	EventType     EventType     `json:"type"`
	SourceLabel   string        `json:"source"`
	EventTime     time.Time     `json:"timestamp"`
	EventSeverity EventSeverity `json:"severity"`
	Run           string        `json:"run_id"`
}

func newBase(t EventType, source string, severity EventSeverity, runID string) BaseEvent {
	return BaseEvent{
		EventType:     t,
		SourceLabel:   source,
		EventTime:     time.Now(),
		EventSeverity: severity,
		Run:           runID,
	}
}

// Type implements Event interface
func (e BaseEvent) Type() EventType { return e.EventType }

// Source implements Event interface
func (e BaseEvent) Source() string { return e.SourceLabel }

// Timestamp implements Event interface
func (e BaseEvent) Timestamp() time.Time { return e.EventTime }

// Severity implements Event interface
func (e BaseEvent) Severity() EventSeverity { return e.EventSeverity }

// RunID implements Event interface
func (e BaseEvent) RunID() string { return e.Run }

// String implements Event interface
func (e BaseEvent) String() string {
	return string(e.EventType) + " from " + e.SourceLabel
}

// StateEvent is a lifecycle state transition.
type StateEvent struct {
	BaseEvent
	From string `json:"from"`
	To   string `json:"to"`
}

func (e StateEvent) String() string {
	return e.From + " → " + e.To
}

// StepEvent reports the start or end of a plan step.
type StepEvent struct {
	BaseEvent
	Step     string        `json:"step"`
	Kind     string        `json:"kind"`
	Skipped  bool          `json:"skipped,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

func (e StepEvent) String() string {
	switch {
	case e.EventType == EventTypeStepStarted:
		return fmt.Sprintf("step %s started", e.Step)
	case e.Skipped:
		return fmt.Sprintf("step %s skipped: %s", e.Step, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
	default:
		return fmt.Sprintf("step %s finished in %s", e.Step, e.Duration.Round(time.Millisecond))
	}
}

// ProcessEvent reports a supervised process starting or exiting.
type ProcessEvent struct {
	BaseEvent
	Process  string   `json:"process"`
	PID      int      `json:"pid"`
	Port     int      `json:"port,omitempty"`
	Command  []string `json:"command,omitempty"`
	ExitCode int      `json:"exit_code,omitempty"`
	Expected bool     `json:"expected,omitempty"`
}

func (e ProcessEvent) String() string {
	if e.EventType == EventTypeProcessStarted {
		return fmt.Sprintf("%s started (pid %d): %s", e.Process, e.PID, strings.Join(e.Command, " "))
	}
	if e.Expected {
		return fmt.Sprintf("%s stopped (pid %d)", e.Process, e.PID)
	}
	return fmt.Sprintf("%s exited unexpectedly (pid %d, exit code %d)", e.Process, e.PID, e.ExitCode)
}

// LogEvent is one line of output from a process or a one-shot step.
type LogEvent struct {
	BaseEvent
	Stream string `json:"stream"`
	Line   string `json:"line"`
}

func (e LogEvent) String() string {
	return e.SourceLabel + " | " + e.Line
}

// HealthEvent reports the outcome of a health probe.
type HealthEvent struct {
	BaseEvent
	URL     string        `json:"url"`
	Elapsed time.Duration `json:"elapsed"`
}

func (e HealthEvent) String() string {
	if e.EventType == EventTypeHealthReady {
		return fmt.Sprintf("%s healthy after %s (%s)", e.SourceLabel, e.Elapsed.Round(100*time.Millisecond), e.URL)
	}
	return fmt.Sprintf("%s not healthy after %s (%s), continuing", e.SourceLabel, e.Elapsed.Round(100*time.Millisecond), e.URL)
}

// PortEvent reports port conflict resolution.
type PortEvent struct {
	BaseEvent
	Port int   `json:"port"`
	PIDs []int `json:"pids,omitempty"`
	Err  error `json:"-"`
}

func (e PortEvent) String() string {
	if e.EventType == EventTypePortFreed {
		if len(e.PIDs) == 0 {
			return fmt.Sprintf("port %d is free", e.Port)
		}
		return fmt.Sprintf("port %d freed (terminated pid(s) %v)", e.Port, e.PIDs)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("port %d is in use", e.Port)
}

// TunnelEvent reports the public address of the tunnel.
type TunnelEvent struct {
	BaseEvent
	URL         string `json:"url"`
	Determinate bool   `json:"determinate"`
	Note        string `json:"note,omitempty"`
}

func (e TunnelEvent) String() string {
	if !e.Determinate {
		return "public address " + e.URL + ": " + e.Note
	}
	return "public address " + e.URL
}

// WarningEvent is a non-fatal problem, e.g. a health timeout or a config
// file that could not be patched.
type WarningEvent struct {
	BaseEvent
	Message     string `json:"message"`
	Err         error  `json:"-"`
	Remediation string `json:"remediation,omitempty"`
}

func (e WarningEvent) String() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// NewRunID returns a fresh identifier for a devctl run.
func NewRunID() string {
	return uuid.NewString()
}
