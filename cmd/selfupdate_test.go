package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfUpdateCmd(t *testing.T) {
	c := newSelfUpdateCmd()
	assert.Equal(t, "self-update", c.Use)
	assert.NotEmpty(t, c.Short)
	assert.NotNil(t, c.RunE)

	var buf bytes.Buffer
	c.SetOut(&buf)
	c.SetErr(&buf)
	c.SetArgs([]string{"--help"})
	require.NoError(t, c.Execute())
	assert.Contains(t, buf.String(), "Checks for the latest release")
}

func TestRunSelfUpdate_RefusesDevelopmentBuilds(t *testing.T) {
	original := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = original })

	for _, v := range []string{"", "dev"} {
		rootCmd.Version = v
		err := runSelfUpdate(newSelfUpdateCmd(), nil)
		assert.EqualError(t, err, "cannot self-update a development version", "version %q", v)
	}
}

func TestRunSelfUpdate_NeedsReleaseRepo(t *testing.T) {
	original := rootCmd.Version
	t.Cleanup(func() { rootCmd.Version = original })
	rootCmd.Version = "1.2.3"
	t.Setenv("DEVCTL_RELEASE_REPO", "")

	err := runSelfUpdate(newSelfUpdateCmd(), nil)
	assert.ErrorContains(t, err, "DEVCTL_RELEASE_REPO")
}

func TestReleaseSlug(t *testing.T) {
	t.Setenv("DEVCTL_RELEASE_REPO", "acme/devctl")
	slug, err := releaseSlug()
	require.NoError(t, err)
	owner, repo, err := slug.GetSlug()
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "devctl", repo)

	t.Setenv("DEVCTL_RELEASE_REPO", "not-a-slug")
	_, err = releaseSlug()
	assert.ErrorContains(t, err, `release repository "not-a-slug"`)
}
