package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 5 * time.Second

// Pinger is a backend that readiness depends on.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency names a backend probed by /readyz. A nil Pinger is reported
// as "not configured" and does not fail readiness.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps []Dependency
}

func NewHealthHandler(deps ...Dependency) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// HealthResponse is the body of both probes.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz never touches a dependency.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every dependency concurrently and answers 503 if any fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		healthy = true
		checks  = make(map[string]string, len(h.deps))
	)
	var g errgroup.Group
	for _, dep := range h.deps {
		g.Go(func() error {
			state, ok := "ok", true
			switch {
			case dep.Pinger == nil:
				state = "not configured"
			default:
				if err := dep.Pinger.Ping(ctx); err != nil {
					state, ok = "error: "+err.Error(), false
				}
			}
			mu.Lock()
			checks[dep.Name] = state
			healthy = healthy && ok
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy", Checks: checks})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Checks: checks})
}
