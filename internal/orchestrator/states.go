package orchestrator

// State is a lifecycle state of the controller.
type State string

const (
	StateIdle             State = "Idle"
	StateInstalling       State = "Installing"
	StateBuilding         State = "Building"
	StateMigrating        State = "Migrating"
	StatePatchingConfig   State = "PatchingConfig"
	StateFreeingPorts     State = "FreeingPorts"
	StateStartingBackend  State = "StartingBackend"
	StateProbingBackend   State = "ProbingBackend"
	StateStartingFrontend State = "StartingFrontend"
	StateStartingTunnel   State = "StartingTunnel"
	StateRunning          State = "Running"
	StateShuttingDown     State = "ShuttingDown"
	StateStopped          State = "Stopped"
)

// startupOrder ranks the startup states; a plan never moves backwards.
var startupOrder = map[State]int{
	StateIdle:             0,
	StateInstalling:       1,
	StateBuilding:         2,
	StateMigrating:        3,
	StatePatchingConfig:   4,
	StateFreeingPorts:     5,
	StateStartingBackend:  6,
	StateProbingBackend:   7,
	StateStartingFrontend: 8,
	StateStartingTunnel:   9,
	StateRunning:          10,
	StateShuttingDown:     11,
	StateStopped:          12,
}

func (s State) String() string { return string(s) }

// Rank returns the position of s in the lifecycle, or -1 if unknown.
func (s State) Rank() int {
	r, ok := startupOrder[s]
	if !ok {
		return -1
	}
	return r
}

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
