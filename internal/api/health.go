package api

import (
	"net/http"
)

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	health := map[string]string{
		"status":   "OK",
		"database": "OK",
		"redis":    "OK",
	}

	if err := h.db.Ping(); err != nil {
		health["status"] = "DEGRADED"
		health["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	if h.cache == nil {
		health["redis"] = "not configured"
	} else if err := h.cache.Ping(r.Context()); err != nil {
		health["status"] = "DEGRADED"
		health["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, health)
}
