package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devctl/internal/errdefs"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "devctl",
	Short: "Bring up and supervise your local development stack",
	Long: `devctl installs dependencies, prepares the database, frees the ports it
needs and then runs the backend and the frontend dev server side by side,
optionally behind a public tunnel. It supervises every process it starts
and stops all of them when you press Ctrl+C or one of them exits.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. a port that cannot be freed)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "devctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(errdefs.ExitCode(err))
	}
}

// printFatal writes err as a single message followed by its remediation.
func printFatal(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errdefs.Remediation(err); hint != "" {
		fmt.Fprintf(w, "  %s\n", hint)
	}
}

func init() {
	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newPortCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
