package api

import (
	"encoding/json"
	"net/http"

	"stock-alerting/internal/auth"
	"stock-alerting/internal/cache"
	"stock-alerting/internal/database"
)

// TrackerResetter clears duration-alert progress when an alert is re-armed
type TrackerResetter interface {
	ResetTracking(alertID int) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db      *database.DB
	cache   *cache.Cache
	issuer  *auth.TokenIssuer
	tracker TrackerResetter
}

// NewHandler creates a new Handler. cache and tracker may be nil in tests.
func NewHandler(db *database.DB, c *cache.Cache, issuer *auth.TokenIssuer, tracker TrackerResetter) *Handler {
	return &Handler{
		db:      db,
		cache:   c,
		issuer:  issuer,
		tracker: tracker,
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
