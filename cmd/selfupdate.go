package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"devctl/pkg/logging"
)

// releaseRepo is the GitHub owner/name releases are published to. Release
// builds set it with -ldflags "-X devctl/cmd.releaseRepo=owner/name";
// DEVCTL_RELEASE_REPO overrides it.
var releaseRepo = ""

// releaseSlug returns the repository to look for releases in.
func releaseSlug() (selfupdate.RepositorySlug, error) {
	repo := releaseRepo
	if v := os.Getenv("DEVCTL_RELEASE_REPO"); v != "" {
		repo = v
	}
	if repo == "" {
		return selfupdate.RepositorySlug{}, errors.New("no release repository configured; set DEVCTL_RELEASE_REPO to owner/name")
	}
	slug := selfupdate.ParseSlug(repo)
	if _, _, err := slug.GetSlug(); err != nil {
		return selfupdate.RepositorySlug{}, fmt.Errorf("release repository %q: %w", repo, err)
	}
	return slug, nil
}

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update devctl to the latest version",
		Long: `Checks for the latest release of devctl on GitHub and, if it is newer
than the running version, replaces the current binary with it.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	currentVersion := rootCmd.Version
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	slug, err := releaseSlug()
	if err != nil {
		return err
	}

	ctx := context.Background()
	if cmd.Context() != nil {
		ctx = cmd.Context()
	}
	out := cmd.OutOrStdout()

	latest, found, err := selfupdate.DetectLatest(ctx, slug)
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("no release of devctl found for %s", currentVersion)
	}

	if latest.LessOrEqual(currentVersion) {
		fmt.Fprintf(out, "Current version (%s) is the latest\n", currentVersion)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	logging.Info("SelfUpdate", "Updating %s from %s to %s", exe, currentVersion, latest.Version())
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
