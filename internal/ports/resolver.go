// Package ports detects bound TCP ports and frees them by terminating
// their owners.
//
// Occupancy is never cached: every call re-checks the socket table, because
// ownership can change between two queries.
package ports

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"devctl/internal/errdefs"
	"devctl/pkg/logging"
)

// DefaultPollInterval is the cadence at which Free re-checks a port after
// terminating its owners.
const DefaultPollInterval = 200 * time.Millisecond

// Binding is a snapshot of a port's occupancy.
type Binding struct {
	Port  int
	Host  string
	Bound bool
	PIDs  []int
}

func (b Binding) String() string {
	if !b.Bound {
		return fmt.Sprintf("%s:%d free", b.Host, b.Port)
	}
	if len(b.PIDs) == 0 {
		return fmt.Sprintf("%s:%d bound (owner unknown)", b.Host, b.Port)
	}
	return fmt.Sprintf("%s:%d bound by %v", b.Host, b.Port, b.PIDs)
}

// Resolver answers occupancy questions for ports on Host.
type Resolver struct {
	Inspector    Inspector
	Host         string // bind address for IsBound; "" means all interfaces
	PollInterval time.Duration
	// BeforeTerminate is called with the owners of port right before they
	// are terminated.
	BeforeTerminate func(port int, pids []int)
}

// NewResolver returns a resolver using the platform inspector.
func NewResolver() *Resolver {
	return &Resolver{Inspector: NewInspector(), PollInterval: DefaultPollInterval}
}

// IsBound reports whether port is in use on the resolver's host.
func (r *Resolver) IsBound(port int) bool {
	return IsBound(port, r.Host)
}

// IsBound tries to listen on (host, port). It returns true only when the
// bind fails with an address-in-use error; any other failure counts as
// available. A successful test listener is closed immediately.
func IsBound(port int, host string) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return isAddrInUse(err)
	}
	_ = l.Close()
	return false
}

// FindOwners returns the pids listening on port, sorted and de-duplicated.
// Absent or unusable tool output yields an empty result, never an error.
func (r *Resolver) FindOwners(ctx context.Context, port int) []int {
	if r.Inspector == nil {
		return nil
	}
	pids, err := r.Inspector.ListeningPIDs(ctx, port)
	if err != nil {
		if !errors.Is(err, ErrNoInspectorOutput) {
			logging.Debug("Ports", "Owner lookup for port %d failed: %v", port, err)
		}
		return nil
	}
	return normalizePIDs(pids)
}

// Inspect returns a fresh snapshot of port.
func (r *Resolver) Inspect(ctx context.Context, port int) Binding {
	b := Binding{Port: port, Host: r.Host, Bound: r.IsBound(port)}
	if b.Bound {
		b.PIDs = r.FindOwners(ctx, port)
	}
	return b
}

// Free makes sure port is not bound. It is a no-op returning true when the
// port is already free. Otherwise every owner is terminated and the port is
// polled until it is released or maxWait has elapsed. Failure is reported
// as false plus a *errdefs.PortConflictError.
func (r *Resolver) Free(ctx context.Context, port int, maxWait time.Duration) (bool, error) {
	if !r.IsBound(port) {
		return true, nil
	}

	owners := r.FindOwners(ctx, port)
	if len(owners) == 0 {
		return false, &errdefs.PortConflictError{Port: port, Reason: "no owner found"}
	}

	logging.Warn("Ports", "Port %d is held by pid(s) %v, terminating them", port, owners)
	if r.BeforeTerminate != nil {
		r.BeforeTerminate(port, owners)
	}
	// Every owner gets the signal even if an earlier one fails.
	for _, pid := range owners {
		if err := r.Inspector.Terminate(ctx, pid); err != nil {
			logging.Debug("Ports", "Terminating pid %d: %v", pid, err)
		}
	}

	interval := r.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	deadline := time.Now().Add(maxWait)
	for {
		if !r.IsBound(port) {
			logging.Info("Ports", "Port %d freed", port)
			return true, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(wait):
		}
	}
	return false, &errdefs.PortConflictError{
		Port:   port,
		PIDs:   owners,
		Reason: fmt.Sprintf("still bound after %s", maxWait),
	}
}
