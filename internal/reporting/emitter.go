package reporting

import (
	"time"

	"devctl/internal/errdefs"
)

// Emitter stamps events with a run ID and publishes them. A nil Emitter or
// an Emitter without a bus discards everything, which keeps components
// usable on their own.
type Emitter struct {
	bus   EventBus
	runID string
}

// NewEmitter returns an emitter publishing to bus under runID.
func NewEmitter(bus EventBus, runID string) *Emitter {
	return &Emitter{bus: bus, runID: runID}
}

// Bus returns the underlying bus.
func (e *Emitter) Bus() EventBus {
	if e == nil {
		return nil
	}
	return e.bus
}

// RunID returns the run identifier stamped on every event.
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.runID
}

func (e *Emitter) publish(ev Event) {
	if e == nil || e.bus == nil {
		return
	}
	e.bus.Publish(ev)
}

func (e *Emitter) base(t EventType, source string, sev EventSeverity) BaseEvent {
	return newBase(t, source, sev, e.RunID())
}

// State reports a lifecycle transition.
func (e *Emitter) State(from, to string) {
	e.publish(StateEvent{BaseEvent: e.base(EventTypeStateChanged, "controller", SeverityInfo), From: from, To: to})
}

// StepStarted reports that a plan step began.
func (e *Emitter) StepStarted(step, kind string) {
	e.publish(StepEvent{BaseEvent: e.base(EventTypeStepStarted, step, SeverityDebug), Step: step, Kind: kind})
}

// StepFinished reports the end of a plan step; err is nil on success.
func (e *Emitter) StepFinished(step, kind string, d time.Duration, err error) {
	sev := SeverityInfo
	if err != nil {
		sev = SeverityError
		if !errdefs.IsFatal(err) {
			sev = SeverityWarn
		}
	}
	e.publish(StepEvent{BaseEvent: e.base(EventTypeStepFinished, step, sev), Step: step, Kind: kind, Duration: d, Err: err})
}

// StepSkipped reports a step that did not run.
func (e *Emitter) StepSkipped(step, kind, reason string) {
	e.publish(StepEvent{BaseEvent: e.base(EventTypeStepFinished, step, SeverityInfo), Step: step, Kind: kind, Skipped: true, Reason: reason})
}

// ProcessStarted reports a spawned process.
func (e *Emitter) ProcessStarted(name string, pid, port int, command []string) {
	e.publish(ProcessEvent{BaseEvent: e.base(EventTypeProcessStarted, name, SeverityInfo), Process: name, PID: pid, Port: port, Command: command})
}

// ProcessExited reports a reaped process.
func (e *Emitter) ProcessExited(name string, pid, exitCode int, expected bool) {
	sev := SeverityInfo
	if !expected {
		sev = SeverityError
	}
	e.publish(ProcessEvent{BaseEvent: e.base(EventTypeProcessExited, name, sev), Process: name, PID: pid, ExitCode: exitCode, Expected: expected})
}

// Log forwards one output line of source.
func (e *Emitter) Log(source, stream, line string) {
	e.publish(LogEvent{BaseEvent: e.base(EventTypeProcessLog, source, SeverityInfo), Stream: stream, Line: line})
}

// HealthReady reports a successful probe.
func (e *Emitter) HealthReady(source, url string, elapsed time.Duration) {
	e.publish(HealthEvent{BaseEvent: e.base(EventTypeHealthReady, source, SeverityInfo), URL: url, Elapsed: elapsed})
}

// HealthTimeout reports a probe that gave up.
func (e *Emitter) HealthTimeout(source, url string, elapsed time.Duration) {
	e.publish(HealthEvent{BaseEvent: e.base(EventTypeHealthTimeout, source, SeverityWarn), URL: url, Elapsed: elapsed})
}

// PortFreed reports a port that is free, after terminating pids if any.
func (e *Emitter) PortFreed(port int, pids []int) {
	e.publish(PortEvent{BaseEvent: e.base(EventTypePortFreed, "ports", SeverityInfo), Port: port, PIDs: pids})
}

// PortConflict reports a port that could not be freed, or that is about
// to be freed by terminating pids when err is nil.
func (e *Emitter) PortConflict(port int, pids []int, err error) {
	sev := SeverityWarn
	if err != nil {
		sev = SeverityError
	}
	e.publish(PortEvent{BaseEvent: e.base(EventTypePortConflict, "ports", sev), Port: port, PIDs: pids, Err: err})
}

// TunnelAddress reports the public address of the tunnel.
func (e *Emitter) TunnelAddress(url string, determinate bool, note string) {
	e.publish(TunnelEvent{BaseEvent: e.base(EventTypeTunnelAddress, "tunnel", SeverityInfo), URL: url, Determinate: determinate, Note: note})
}

// Warning reports a non-fatal problem.
func (e *Emitter) Warning(source, message string, err error) {
	e.publish(WarningEvent{
		BaseEvent:   e.base(EventTypeWarning, source, SeverityWarn),
		Message:     message,
		Err:         err,
		Remediation: errdefs.Remediation(err),
	})
}
