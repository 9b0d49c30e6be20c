// Package patcher makes the frontend dev server forward API paths to the
// backend by inserting a proxy block into its configuration file.
//
// The edit is textual: it only touches files whose
// shape it recognises, keeps a byte-identical backup next to the original
// before the first change, and never edits a file that already proxies.
package patcher

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"devctl/internal/errdefs"
	"devctl/pkg/logging"
)

// BackupSuffix is appended to the patched file name for the backup copy.
const BackupSuffix = ".bak"

var (
	defineConfigRE = regexp.MustCompile(`export\s+default\s+defineConfig\s*\(\s*\{`)
	serverProxyRE  = regexp.MustCompile(`server\s*:\s*\{\s*proxy\s*:`)
)

// ViteProxy describes the proxy block to insert into a Vite config.
type ViteProxy struct {
	Path   string   // vite.config.ts
	Target string   // backend base URL, e.g. http://127.0.0.1:8787
	Paths  []string // proxied request paths, e.g. /api
}

// BackupPath is where the original file is copied before patching.
func (v ViteProxy) BackupPath() string {
	return v.Path + BackupSuffix
}

// Apply inserts the proxy block if it is not there yet and reports whether
// the file changed. Every failure is a *errdefs.ConfigPatchError, which the
// caller treats as a warning.
func (v ViteProxy) Apply() (bool, error) {
	if len(v.Paths) == 0 {
		return false, v.fail("no proxied paths configured")
	}
	src, err := os.ReadFile(v.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, v.fail("file not found")
		}
		return false, v.fail(err.Error())
	}
	text := string(src)

	if v.hasProxy(text) {
		logging.Info("Patcher", "%s already proxies to the backend, leaving it alone", v.Path)
		return false, nil
	}

	if !defineConfigRE.MatchString(text) {
		return false, v.fail("export default defineConfig({ not found")
	}
	end := strings.LastIndex(text, "})")
	if end < 0 {
		return false, v.fail("end of the defineConfig object not found")
	}

	patched := text[:end] + v.snippet(text[:end]) + text[end:]

	info, err := os.Stat(v.Path)
	if err != nil {
		return false, v.fail(err.Error())
	}
	if err := os.WriteFile(v.BackupPath(), src, info.Mode().Perm()); err != nil {
		return false, v.fail("writing backup: " + err.Error())
	}
	if err := os.WriteFile(v.Path, []byte(patched), info.Mode().Perm()); err != nil {
		return false, v.fail(err.Error())
	}
	logging.Info("Patcher", "Added dev proxy for %v to %s (backup %s)", v.Paths, v.Path, v.BackupPath())
	return true, nil
}

// hasProxy recognises an existing server.proxy block, or a server block
// that mentions one of the proxied paths in quotes.
func (v ViteProxy) hasProxy(text string) bool {
	if serverProxyRE.MatchString(text) {
		return true
	}
	if !strings.Contains(text, "server:") {
		return false
	}
	for _, p := range v.Paths {
		if strings.Contains(text, "'"+p+"'") || strings.Contains(text, `"`+p+`"`) {
			return true
		}
	}
	return false
}

// snippet renders the server block. before is the text it is inserted
// after; a separating comma is only added when the last property lacks one.
func (v ViteProxy) snippet(before string) string {
	entries := make([]string, 0, len(v.Paths))
	for _, p := range v.Paths {
		entries = append(entries, fmt.Sprintf("'%s': '%s'", p, v.Target))
	}
	block := "  server: { proxy: { " + strings.Join(entries, ", ") + " } }\n"

	trimmed := strings.TrimRight(before, " \t\r\n")
	if strings.HasSuffix(trimmed, ",") || strings.HasSuffix(trimmed, "{") {
		return "\n" + block
	}
	return ",\n" + block
}

func (v ViteProxy) fail(reason string) error {
	return &errdefs.ConfigPatchError{Path: v.Path, Reason: reason}
}
