package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"stock-alerting/internal/logger"
	"stock-alerting/internal/middleware"
	"stock-alerting/internal/models"
)

type createAlertRequest struct {
	Stock           int             `json:"stock"`
	AlertType       string          `json:"alert_type"`
	Condition       string          `json:"condition"`
	ThresholdPrice  decimal.Decimal `json:"threshold_price"`
	DurationMinutes *int            `json:"duration_minutes"`
	Description     string          `json:"description"`
	IsActive        *bool           `json:"is_active"`
}

// CreateAlert handles POST /alerts/
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stock, err := h.db.GetStockByID(req.Stock)
	if err != nil {
		respondError(w, http.StatusBadRequest, "stock not found")
		return
	}

	alert := &models.Alert{
		UserID:          userID,
		StockID:         stock.ID,
		AlertType:       req.AlertType,
		Condition:       req.Condition,
		ThresholdPrice:  req.ThresholdPrice,
		DurationMinutes: req.DurationMinutes,
		Description:     req.Description,
		IsActive:        true,
	}
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}

	if err := alert.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.CreateAlert(alert); err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to create alert")
		respondError(w, http.StatusBadRequest, "an identical active alert already exists")
		return
	}

	created, err := h.db.GetAlertByID(alert.ID)
	if err == nil {
		alert = created
	}
	respondJSON(w, http.StatusCreated, alert)
}

// ListAlerts handles GET /alerts/
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	var isActive *bool
	if raw := r.URL.Query().Get("is_active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid is_active parameter")
			return
		}
		isActive = &active
	}
	symbol := r.URL.Query().Get("stock_symbol")

	alerts, err := h.db.GetAlertsByUser(userID, isActive, symbol)
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to list alerts")
		respondError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

// GetAlert handles GET /alerts/{id}/
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	alertID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid alert ID")
		return
	}

	alert, err := h.db.GetAlertByID(alertID)
	if err != nil || alert.UserID != userID {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

type updateAlertRequest struct {
	AlertType       *string          `json:"alert_type"`
	Condition       *string          `json:"condition"`
	ThresholdPrice  *decimal.Decimal `json:"threshold_price"`
	DurationMinutes *int             `json:"duration_minutes"`
	Description     *string          `json:"description"`
	IsActive        *bool            `json:"is_active"`
}

// UpdateAlert handles PUT /alerts/{id}/. Only definition fields can change;
// re-arming an inactive alert clears any accumulated duration progress.
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	alertID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid alert ID")
		return
	}

	alert, err := h.db.GetAlertByID(alertID)
	if err != nil || alert.UserID != userID {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	wasActive := alert.IsActive

	var req updateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.AlertType != nil {
		alert.AlertType = *req.AlertType
	}
	if req.Condition != nil {
		alert.Condition = *req.Condition
	}
	if req.ThresholdPrice != nil {
		alert.ThresholdPrice = *req.ThresholdPrice
	}
	if req.DurationMinutes != nil {
		alert.DurationMinutes = req.DurationMinutes
	}
	if req.Description != nil {
		alert.Description = *req.Description
	}
	if req.IsActive != nil {
		alert.IsActive = *req.IsActive
	}

	if err := alert.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := logger.WithComponent("api")
	if err := h.db.UpdateAlert(alert); err != nil {
		log.Error().Err(err).Int("alert_id", alertID).Msg("failed to update alert")
		respondError(w, http.StatusInternalServerError, "failed to update alert")
		return
	}

	if !wasActive && alert.IsActive && h.tracker != nil {
		if err := h.tracker.ResetTracking(alert.ID); err != nil {
			log.Error().Err(err).Int("alert_id", alertID).Msg("failed to reset alert tracking")
		}
	}

	updated, err := h.db.GetAlertByID(alertID)
	if err == nil {
		alert = updated
	}
	respondJSON(w, http.StatusOK, alert)
}

// DeleteAlert handles DELETE /alerts/{id}/
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	alertID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid alert ID")
		return
	}

	if err := h.db.DeleteAlert(alertID, userID); err != nil {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTriggeredAlerts handles GET /alerts/triggered/
func (h *Handler) ListTriggeredAlerts(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 {
			respondError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
	}

	triggered, err := h.db.GetTriggeredAlertsByUser(userID, days)
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to list triggered alerts")
		respondError(w, http.StatusInternalServerError, "failed to list triggered alerts")
		return
	}
	respondJSON(w, http.StatusOK, triggered)
}

// AlertStatistics handles GET /alerts/statistics/
func (h *Handler) AlertStatistics(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserID(r.Context())

	stats, err := h.db.GetAlertStatistics(userID)
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to get alert statistics")
		respondError(w, http.StatusInternalServerError, "failed to get alert statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
