// Package browser opens URLs in the user's default browser.
package browser

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"devctl/pkg/logging"
)

// startCommand is swapped in tests.
var startCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap the launcher; browsers detach on their own.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Command returns the launcher for url on goos.
func Command(goos, url string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{url}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{url}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// Open launches the default browser on url without waiting for it.
func Open(url string) error {
	name, args, err := Command(runtime.GOOS, url)
	if err != nil {
		return err
	}
	logging.Debug("Browser", "Opening %s with %s", url, name)
	if err := startCommand(name, args...); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// OpenAfter waits delay, then opens url. It returns ctx.Err() without
// opening anything when ctx ends first.
func OpenAfter(ctx context.Context, delay time.Duration, url string) error {
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return Open(url)
}
