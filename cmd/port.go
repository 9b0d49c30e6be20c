package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"devctl/internal/errdefs"
	"devctl/internal/ports"
)

// newResolver is swapped in tests.
var newResolver = ports.NewResolver

func newPortCmd() *cobra.Command {
	portCmd := &cobra.Command{
		Use:   "port",
		Short: "Inspect or free a local TCP port",
		Long: `Inspect a local TCP port and the processes listening on it, or
terminate those processes so the port can be reused.`,
	}

	portCmd.AddCommand(&cobra.Command{
		Use:   "check <port>",
		Short: "Show whether a port is bound and by which processes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			b := newResolver().Inspect(cmd.Context(), port)
			fmt.Fprintln(cmd.OutOrStdout(), b.String())
			return nil
		},
	})

	var wait time.Duration
	freeCmd := &cobra.Command{
		Use:   "free <port>",
		Short: "Terminate the processes listening on a port",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			r := newResolver()
			r.BeforeTerminate = func(port int, pids []int) {
				fmt.Fprintf(cmd.OutOrStdout(), "terminating %v listening on port %d\n", pids, port)
			}
			ok, err := r.Free(cmd.Context(), port, wait)
			if err != nil {
				return err
			}
			if !ok {
				return &errdefs.PortConflictError{Port: port, Reason: fmt.Sprintf("still bound after %s", wait)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "port %d is free\n", port)
			return nil
		},
	}
	freeCmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "How long to wait for the port to be released")
	portCmd.AddCommand(freeCmd)

	return portCmd
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q: expected a number between 1 and 65535", s)
	}
	return port, nil
}
