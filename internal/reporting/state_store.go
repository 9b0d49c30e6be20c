package reporting

import (
	"sort"
	"sync"
	"time"
)

// ProcessStatus is the presentation-level status of a supervised process.
type ProcessStatus string

const (
	ProcessRunning ProcessStatus = "running"
	ProcessStopped ProcessStatus = "stopped"
	ProcessExited  ProcessStatus = "exited"
)

// ProcessSnapshot describes one process as seen through the event stream.
type ProcessSnapshot struct {
	Name      string
	PID       int
	Port      int
	Status    ProcessStatus
	Healthy   *bool // nil until a probe has reported
	ExitCode  int
	StartedAt time.Time
	Order     int // start order
}

// Snapshot is the aggregated view of a run, built from events.
type Snapshot struct {
	RunID       string
	State       string
	Processes   []ProcessSnapshot // in start order
	TunnelURL   string
	TunnelNote  string
	Warnings    []string
	LastUpdated time.Time
	EventsSeen  int64
	FreedPorts  map[int][]int
}

// StateStore folds the event stream into a Snapshot for the dashboard and
// the control server. It is safe for concurrent use.
type StateStore struct {
	mu         sync.RWMutex
	runID      string
	state      string
	processes  map[string]*ProcessSnapshot
	order      int
	tunnelURL  string
	tunnelNote string
	warnings   []string
	updated    time.Time
	seen       int64
	freed      map[int][]int
	maxWarn    int
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{
		state:     "Idle",
		processes: make(map[string]*ProcessSnapshot),
		freed:     make(map[int][]int),
		maxWarn:   20,
	}
}

// StoreEvents selects the events folded by a StateStore or a LogTail. Step
// progress only matters to renderers.
func StoreEvents() EventFilter {
	return FilterByType(
		EventTypeStateChanged,
		EventTypeProcessStarted,
		EventTypeProcessExited,
		EventTypeProcessLog,
		EventTypeHealthReady,
		EventTypeHealthTimeout,
		EventTypePortFreed,
		EventTypePortConflict,
		EventTypeTunnelAddress,
		EventTypeWarning,
	)
}

// Apply folds one event into the store.
func (s *StateStore) Apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seen++
	s.updated = ev.Timestamp()
	if s.runID == "" {
		s.runID = ev.RunID()
	}

	switch e := ev.(type) {
	case StateEvent:
		s.state = e.To
	case ProcessEvent:
		p := s.process(e.Process)
		p.PID = e.PID
		if e.Type() == EventTypeProcessStarted {
			s.order++
			p.Order = s.order
			p.Port = e.Port
			p.Status = ProcessRunning
			p.StartedAt = e.Timestamp()
			p.Healthy = nil
			return
		}
		p.ExitCode = e.ExitCode
		p.Status = ProcessExited
		if e.Expected {
			p.Status = ProcessStopped
		}
	case HealthEvent:
		healthy := e.Type() == EventTypeHealthReady
		s.process(e.Source()).Healthy = &healthy
	case TunnelEvent:
		s.tunnelURL = e.URL
		s.tunnelNote = e.Note
	case PortEvent:
		if e.Type() == EventTypePortFreed {
			s.freed[e.Port] = append([]int(nil), e.PIDs...)
		}
	case WarningEvent:
		s.warnings = append(s.warnings, e.String())
		if len(s.warnings) > s.maxWarn {
			s.warnings = s.warnings[len(s.warnings)-s.maxWarn:]
		}
	}
}

func (s *StateStore) process(name string) *ProcessSnapshot {
	p, ok := s.processes[name]
	if !ok {
		p = &ProcessSnapshot{Name: name}
		s.processes[name] = p
	}
	return p
}

// State returns the current lifecycle state.
func (s *StateStore) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns a copy of the aggregated view.
func (s *StateStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		RunID:       s.runID,
		State:       s.state,
		TunnelURL:   s.tunnelURL,
		TunnelNote:  s.tunnelNote,
		Warnings:    append([]string(nil), s.warnings...),
		LastUpdated: s.updated,
		EventsSeen:  s.seen,
		FreedPorts:  make(map[int][]int, len(s.freed)),
	}
	for port, pids := range s.freed {
		snap.FreedPorts[port] = append([]int(nil), pids...)
	}
	for _, p := range s.processes {
		cp := *p
		if p.Healthy != nil {
			h := *p.Healthy
			cp.Healthy = &h
		}
		snap.Processes = append(snap.Processes, cp)
	}
	sort.Slice(snap.Processes, func(i, j int) bool {
		return snap.Processes[i].Order < snap.Processes[j].Order
	})
	return snap
}
