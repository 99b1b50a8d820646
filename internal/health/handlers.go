// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/motor-valuation/internal/common"
)

var ready atomic.Bool

func init() { ready.Store(true) }

// SetReady flips the readiness gate, typically to false once shutdown begins.
func SetReady(v bool) { ready.Store(v) }

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Check is a named readiness probe with its own deadline.
type Check struct {
	Name    string
	Probe   Probe
	Timeout time.Duration
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	status := make(map[string]string, len(h.Checks))
	code := http.StatusOK
	for _, c := range h.Checks {
		if err := run(r.Context(), c); err != nil {
			status[c.Name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		status[c.Name] = "ok"
	}
	common.JSON(w, code, status)
}

func run(ctx context.Context, c Check) error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Probe(ctx)
}
