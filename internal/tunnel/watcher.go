package tunnel

import (
	"regexp"
	"sync"

	"github.com/atotto/clipboard"

	"devctl/internal/reporting"
	"devctl/internal/supervisor"
	"devctl/pkg/logging"
)

// ngrok logs "msg="started tunnel" ... url=https://abcd.ngrok-free.app".
var urlRE = regexp.MustCompile(`\burl=(https://[^\s"]+)`)

// writeClipboard is swapped in tests.
var writeClipboard = clipboard.WriteAll

// AddressWatcher picks the public address out of the tunnel output and
// reports it once.
type AddressWatcher struct {
	emitter *reporting.Emitter
	copyURL bool

	mu  sync.Mutex
	url string
}

// NewAddressWatcher returns a watcher publishing through emitter. With
// copyURL the address is also placed on the clipboard.
func NewAddressWatcher(emitter *reporting.Emitter, copyURL bool) *AddressWatcher {
	return &AddressWatcher{emitter: emitter, copyURL: copyURL}
}

// Observe inspects one output line. Lines of other processes are ignored.
func (w *AddressWatcher) Observe(l supervisor.Line) {
	if l.Process != ProcessName {
		return
	}
	m := urlRE.FindStringSubmatch(l.Text)
	if m == nil {
		return
	}

	w.mu.Lock()
	if w.url != "" {
		w.mu.Unlock()
		return
	}
	w.url = m[1]
	w.mu.Unlock()

	note := ""
	if w.copyURL {
		if err := writeClipboard(m[1]); err != nil {
			logging.Warn("Tunnel", "Failed to copy %s to the clipboard: %v", m[1], err)
		} else {
			note = "copied to clipboard"
		}
	}
	w.emitter.TunnelAddress(m[1], true, note)
}

// URL returns the observed address, or "".
func (w *AddressWatcher) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}
