package reporting

import (
	"sort"
	"sync"
)

// DefaultTailLines is the number of lines kept per source.
const DefaultTailLines = 500

// LogTail keeps the most recent output lines of every source in a bounded
// ring.
type LogTail struct {
	mu    sync.RWMutex
	size  int
	rings map[string]*ring
}

type ring struct {
	lines []string
	next  int
	full  bool
}

// NewLogTail returns a tail keeping up to size lines per source.
func NewLogTail(size int) *LogTail {
	if size <= 0 {
		size = DefaultTailLines
	}
	return &LogTail{size: size, rings: make(map[string]*ring)}
}

// Add appends a line for source, evicting the oldest one when full.
func (t *LogTail) Add(source, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.rings[source]
	if !ok {
		r = &ring{lines: make([]string, t.size)}
		t.rings[source] = r
	}
	r.lines[r.next] = line
	r.next = (r.next + 1) % t.size
	if r.next == 0 {
		r.full = true
	}
}

// Observe records LogEvents and ignores everything else.
func (t *LogTail) Observe(ev Event) {
	if le, ok := ev.(LogEvent); ok {
		t.Add(le.Source(), le.Line)
	}
}

// Lines returns up to n of the most recent lines of source, oldest first.
// n <= 0 returns everything kept.
func (t *LogTail) Lines(source string, n int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.rings[source]
	if !ok {
		return nil
	}

	var all []string
	if r.full {
		all = append(all, r.lines[r.next:]...)
		all = append(all, r.lines[:r.next]...)
	} else {
		all = append(all, r.lines[:r.next]...)
	}
	if n > 0 && n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}

// Sources returns the names with at least one line, sorted.
func (t *LogTail) Sources() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.rings))
	for s := range t.rings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
