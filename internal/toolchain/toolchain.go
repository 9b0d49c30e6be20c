// Package toolchain resolves the external binaries devctl depends on.
//
// Binaries are looked up once, at startup, and the resulting Toolchain is
// passed to every component that launches processes. A Toolchain is
// immutable after Resolve returns.
package toolchain

import (
	"os/exec"
	"sort"

	"devctl/internal/errdefs"
	"devctl/pkg/logging"
)

// Requirement names a binary and the hint shown when it is missing.
type Requirement struct {
	Name string
	Hint string
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Toolchain maps binary names to resolved absolute paths.
type Toolchain struct {
	paths map[string]string
	hints map[string]string
}

// Resolve looks every requirement up on PATH. The first missing binary is
// returned as a *errdefs.ToolMissingError.
func Resolve(reqs ...Requirement) (*Toolchain, error) {
	tc := &Toolchain{
		paths: make(map[string]string, len(reqs)),
		hints: make(map[string]string, len(reqs)),
	}
	for _, r := range reqs {
		if r.Name == "" {
			continue
		}
		if _, done := tc.paths[r.Name]; done {
			continue
		}
		p, err := lookPath(r.Name)
		if err != nil {
			return nil, &errdefs.ToolMissingError{Tool: r.Name, Hint: r.Hint}
		}
		tc.paths[r.Name] = p
		tc.hints[r.Name] = r.Hint
		logging.Debug("Toolchain", "Resolved %s -> %s", r.Name, p)
	}
	return tc, nil
}

// Path returns the resolved path of name.
func (t *Toolchain) Path(name string) (string, bool) {
	if t == nil {
		return "", false
	}
	p, ok := t.paths[name]
	return p, ok
}

// Has reports whether name was resolved.
func (t *Toolchain) Has(name string) bool {
	_, ok := t.Path(name)
	return ok
}

// Names returns the resolved binary names, sorted.
func (t *Toolchain) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, 0, len(t.paths))
	for n := range t.paths {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Command returns argv with argv[0] replaced by its resolved path. A name
// that was not part of the requirements is looked up on demand; a lookup
// failure yields *errdefs.ToolMissingError. The Toolchain is not modified.
func (t *Toolchain) Command(argv []string) ([]string, error) {
	if len(argv) == 0 {
		return nil, &errdefs.ToolMissingError{Tool: "", Hint: "empty command"}
	}
	out := make([]string, len(argv))
	copy(out, argv)
	if p, ok := t.Path(argv[0]); ok {
		out[0] = p
		return out, nil
	}
	p, err := lookPath(argv[0])
	if err != nil {
		hint := ""
		if t != nil {
			hint = t.hints[argv[0]]
		}
		return nil, &errdefs.ToolMissingError{Tool: argv[0], Hint: hint}
	}
	out[0] = p
	return out, nil
}
