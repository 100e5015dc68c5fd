package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports the service and its optional dependencies.
type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	deps := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			status = "degraded"
			deps[name] = err.Error()
			continue
		}
		deps[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "dependencies": deps})
}
