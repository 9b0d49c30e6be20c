// Package health polls HTTP endpoints until they report ready.
package health

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"devctl/pkg/logging"
)

const (
	DefaultInterval       = time.Second
	DefaultRequestTimeout = 3 * time.Second

	// maxBodyBytes bounds how much of a health response is read.
	maxBodyBytes = 1 << 20
)

// Spec describes one probe. It is not modified by Probe.
type Spec struct {
	URL      string
	Timeout  time.Duration
	Interval time.Duration
	// RequestTimeout bounds each request; it is further capped by the time
	// left until Timeout.
	RequestTimeout time.Duration
	// Ready decides whether a 200 response body means ready. Nil accepts
	// any 200.
	Ready func(body []byte) bool
}

// ReadyField returns a predicate accepting a JSON object whose boolean
// field name is true, e.g. {"ok": true}.
func ReadyField(name string) func([]byte) bool {
	return func(body []byte) bool {
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(body, &doc); err != nil {
			return false
		}
		raw, ok := doc[name]
		if !ok {
			return false
		}
		var v bool
		if err := json.Unmarshal(raw, &v); err != nil {
			return false
		}
		return v
	}
}

// Prober runs health probes.
type Prober struct {
	Client *http.Client
}

// NewProber returns a prober with a fresh client that does not reuse
// connections between attempts.
func NewProber() *Prober {
	return &Prober{Client: &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}}
}

// Probe polls spec.URL every spec.Interval. It returns true as soon as a
// request answers 200 with a body accepted by spec.Ready, and false once
// spec.Timeout has elapsed without that happening, or when ctx is done.
// Connection errors, other statuses and malformed bodies are treated as
// "not ready yet" and retried.
func (p *Prober) Probe(ctx context.Context, spec Spec) bool {
	interval := spec.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	reqTimeout := spec.RequestTimeout
	if reqTimeout <= 0 {
		reqTimeout = DefaultRequestTimeout
	}
	deadline := time.Now().Add(spec.Timeout)

	for attempt := 1; ; attempt++ {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		budget := reqTimeout
		if remaining < budget {
			budget = remaining
		}
		if p.attempt(ctx, spec, budget, attempt) {
			return true
		}

		remaining = time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (p *Prober) attempt(ctx context.Context, spec Spec, budget time.Duration, n int) bool {
	reqCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, spec.URL, nil)
	if err != nil {
		logging.Debug("Health", "Invalid probe URL %s: %v", spec.URL, err)
		return false
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logging.Debug("Health", "Probe %d of %s: %v", n, spec.URL, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logging.Debug("Health", "Probe %d of %s: status %d", n, spec.URL, resp.StatusCode)
		return false
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		logging.Debug("Health", "Probe %d of %s: reading body: %v", n, spec.URL, err)
		return false
	}
	if spec.Ready != nil && !spec.Ready(body) {
		logging.Debug("Health", "Probe %d of %s: not ready: %s", n, spec.URL, body)
		return false
	}
	return true
}
