package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Alert type constants
const (
	AlertTypeThreshold = "threshold"
	AlertTypeDuration  = "duration"
)

// Condition constants
const (
	ConditionAbove = "above"
	ConditionBelow = "below"
)

// Validation errors for alert definitions
var (
	ErrInvalidAlertType      = errors.New("alert_type must be threshold or duration")
	ErrInvalidCondition      = errors.New("condition must be above or below")
	ErrInvalidThresholdPrice = errors.New("threshold_price must be positive")
	ErrMissingDuration       = errors.New("duration_minutes is required for duration alerts")
	ErrInvalidDuration       = errors.New("duration_minutes must be at least 1")
)

// Alert represents a user's price alert on one stock
type Alert struct {
	ID              int             `json:"id"`
	UserID          int             `json:"user_id"`
	StockID         int             `json:"stock"`
	StockSymbol     string          `json:"stock_symbol,omitempty"`
	StockName       string          `json:"stock_name,omitempty"`
	AlertType       string          `json:"alert_type"`
	Condition       string          `json:"condition"`
	ThresholdPrice  decimal.Decimal `json:"threshold_price"`
	DurationMinutes *int            `json:"duration_minutes,omitempty"`
	Description     string          `json:"description,omitempty"`
	IsActive        bool            `json:"is_active"`

	// Duration tracking state, owned by the evaluation engine
	ConditionFirstMet     *time.Time `json:"condition_first_met,omitempty"`
	ConditionCurrentlyMet bool       `json:"condition_currently_met"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the alert definition. A duration on a threshold alert is
// cleared rather than rejected, matching the create form's behavior.
func (a *Alert) Validate() error {
	if a.AlertType != AlertTypeThreshold && a.AlertType != AlertTypeDuration {
		return ErrInvalidAlertType
	}
	if a.Condition != ConditionAbove && a.Condition != ConditionBelow {
		return ErrInvalidCondition
	}
	if !a.ThresholdPrice.IsPositive() {
		return ErrInvalidThresholdPrice
	}
	switch a.AlertType {
	case AlertTypeDuration:
		if a.DurationMinutes == nil {
			return ErrMissingDuration
		}
		if *a.DurationMinutes < 1 {
			return ErrInvalidDuration
		}
	case AlertTypeThreshold:
		a.DurationMinutes = nil
	}
	return nil
}

// Duration returns the required hold time for duration alerts.
func (a *Alert) Duration() time.Duration {
	if a.DurationMinutes == nil {
		return 0
	}
	return time.Duration(*a.DurationMinutes) * time.Minute
}

// ConditionMet reports whether a price satisfies the alert condition.
// Equality never satisfies either direction.
func (a *Alert) ConditionMet(price decimal.Decimal) bool {
	switch a.Condition {
	case ConditionAbove:
		return price.GreaterThan(a.ThresholdPrice)
	case ConditionBelow:
		return price.LessThan(a.ThresholdPrice)
	}
	return false
}

// TriggeredAlert is an immutable record of one triggering event
type TriggeredAlert struct {
	ID              int             `json:"id"`
	AlertID         int             `json:"alert_id"`
	StockSymbol     string          `json:"stock_symbol,omitempty"`
	StockName       string          `json:"stock_name,omitempty"`
	AlertType       string          `json:"alert_type,omitempty"`
	Condition       string          `json:"condition,omitempty"`
	ThresholdPrice  decimal.Decimal `json:"threshold_price"`
	TriggerPrice    decimal.Decimal `json:"trigger_price"`
	SampleTimestamp time.Time       `json:"sample_timestamp"`
	TriggeredAt     time.Time       `json:"triggered_at"`

	// Notification tracking
	EmailSent         bool       `json:"email_sent"`
	EmailSentAt       *time.Time `json:"email_sent_at,omitempty"`
	NotificationError string     `json:"notification_error,omitempty"`
}

// AlertStatistics summarizes a user's alerts and trigger history
type AlertStatistics struct {
	TotalAlerts        int `json:"total_alerts"`
	ActiveAlerts       int `json:"active_alerts"`
	InactiveAlerts     int `json:"inactive_alerts"`
	TotalTriggered     int `json:"total_triggered"`
	TriggeredThisWeek  int `json:"triggered_this_week"`
	TriggeredThisMonth int `json:"triggered_this_month"`
	ThresholdAlerts    int `json:"threshold_alerts"`
	DurationAlerts     int `json:"duration_alerts"`
}

// EventTypeAlertTriggered is the event_type carried by TriggerEvent messages
const EventTypeAlertTriggered = "ALERT_TRIGGERED"

// TriggerEvent is the Kafka event published when an alert fires
type TriggerEvent struct {
	EventType        string          `json:"event_type"`
	TriggeredAlertID int             `json:"triggered_alert_id"`
	AlertID          int             `json:"alert_id"`
	Symbol           string          `json:"symbol"`
	AlertType        string          `json:"alert_type"`
	Condition        string          `json:"condition"`
	ThresholdPrice   decimal.Decimal `json:"threshold_price"`
	DurationMinutes  int             `json:"duration_minutes,omitempty"`
	TriggerPrice     decimal.Decimal `json:"trigger_price"`
	TriggeredAt      time.Time       `json:"triggered_at"`
}
