package handler

import (
	"context"
	"net/http"
)

// Pinger is anything whose liveness the health endpoint reports
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness endpoint
type HealthHandler struct {
	db     Pinger
	broker Pinger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db, broker Pinger) *HealthHandler {
	return &HealthHandler{db: db, broker: broker}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"broker":   "ok",
	}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.broker.Ping(r.Context()); err != nil {
		checks["broker"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	WriteJSON(w, status, map[string]interface{}{
		"status": statusWord(status),
		"checks": checks,
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
