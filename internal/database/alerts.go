package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-alerting/internal/models"
)

// CreateAlert inserts a new alert
func (db *DB) CreateAlert(a *models.Alert) error {
	query := `
		INSERT INTO alerts (
			user_id, stock_id, alert_type, condition, threshold_price,
			duration_minutes, description, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		a.UserID, a.StockID, a.AlertType, a.Condition, a.ThresholdPrice,
		a.DurationMinutes, a.Description, a.IsActive, now,
	).Scan(&a.ID)

	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

const alertColumns = `
	a.id, a.user_id, a.stock_id, s.symbol, s.name, a.alert_type, a.condition,
	a.threshold_price, a.duration_minutes, a.description, a.is_active,
	a.condition_first_met, a.condition_currently_met, a.created_at, a.updated_at
`

// GetAlertByID retrieves an alert by ID
func (db *DB) GetAlertByID(id int) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		JOIN stocks s ON a.stock_id = s.id
		WHERE a.id = $1
	`
	alerts, err := db.scanAlerts(db.conn.Query(query, id))
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, fmt.Errorf("alert not found: %d", id)
	}
	return alerts[0], nil
}

// GetAlertsByUser retrieves a user's alerts, newest first. isActive filters
// by active state when non-nil; symbolFilter matches symbol substrings.
func (db *DB) GetAlertsByUser(userID int, isActive *bool, symbolFilter string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		JOIN stocks s ON a.stock_id = s.id
		WHERE a.user_id = $1
		  AND ($2::boolean IS NULL OR a.is_active = $2)
		  AND ($3 = '' OR s.symbol ILIKE '%' || $3 || '%')
		ORDER BY a.created_at DESC
	`
	return db.scanAlerts(db.conn.Query(query, userID, isActive, symbolFilter))
}

// GetActiveAlertsByStockID retrieves all active alerts watching one stock
func (db *DB) GetActiveAlertsByStockID(stockID int) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts a
		JOIN stocks s ON a.stock_id = s.id
		WHERE a.stock_id = $1 AND a.is_active = true
		ORDER BY a.id
	`
	return db.scanAlerts(db.conn.Query(query, stockID))
}

func (db *DB) scanAlerts(rows *sql.Rows, err error) ([]*models.Alert, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		var a models.Alert
		var durationMinutes sql.NullInt64
		var firstMet sql.NullTime

		err := rows.Scan(
			&a.ID, &a.UserID, &a.StockID, &a.StockSymbol, &a.StockName,
			&a.AlertType, &a.Condition, &a.ThresholdPrice, &durationMinutes,
			&a.Description, &a.IsActive, &firstMet, &a.ConditionCurrentlyMet,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		if durationMinutes.Valid {
			minutes := int(durationMinutes.Int64)
			a.DurationMinutes = &minutes
		}
		if firstMet.Valid {
			a.ConditionFirstMet = &firstMet.Time
		}

		alerts = append(alerts, &a)
	}

	return alerts, nil
}

// UpdateAlert updates the client-editable fields of an alert. Tracking
// state, ownership and the stock binding are never written here.
func (db *DB) UpdateAlert(a *models.Alert) error {
	query := `
		UPDATE alerts SET
			alert_type = $3, condition = $4, threshold_price = $5,
			duration_minutes = $6, description = $7, is_active = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2
	`
	a.UpdatedAt = time.Now()
	result, err := db.conn.Exec(query,
		a.ID, a.UserID, a.AlertType, a.Condition, a.ThresholdPrice,
		a.DurationMinutes, a.Description, a.IsActive, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert not found: %d", a.ID)
	}
	return nil
}

// UpdateAlertTracking persists the duration tracker state for an alert
func (db *DB) UpdateAlertTracking(alertID int, firstMet *time.Time, currentlyMet bool) error {
	query := `
		UPDATE alerts SET condition_first_met = $2, condition_currently_met = $3
		WHERE id = $1
	`
	_, err := db.conn.Exec(query, alertID, firstMet, currentlyMet)
	if err != nil {
		return fmt.Errorf("failed to update alert tracking: %w", err)
	}
	return nil
}

// DeleteAlert removes an alert owned by the given user
func (db *DB) DeleteAlert(id, userID int) error {
	query := `DELETE FROM alerts WHERE id = $1 AND user_id = $2`
	result, err := db.conn.Exec(query, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("alert not found: %d", id)
	}
	return nil
}

// FireAlert records a trigger and deactivates the alert in one transaction.
// The unique (alert_id, sample_timestamp) key makes replays a no-op: the
// existing triggered alert is returned and no second row is created.
func (db *DB) FireAlert(alertID int, triggerPrice decimal.Decimal, sampleTimestamp time.Time) (*models.TriggeredAlert, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	t := &models.TriggeredAlert{
		AlertID:         alertID,
		TriggerPrice:    triggerPrice,
		SampleTimestamp: sampleTimestamp,
	}

	insert := `
		INSERT INTO triggered_alerts (alert_id, trigger_price, sample_timestamp, triggered_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (alert_id, sample_timestamp) DO NOTHING
		RETURNING id, triggered_at
	`
	err = tx.QueryRow(insert, alertID, triggerPrice, sampleTimestamp, time.Now()).
		Scan(&t.ID, &t.TriggeredAt)
	if err == sql.ErrNoRows {
		// Replayed trigger: fetch the existing record instead
		existing := `
			SELECT id, triggered_at FROM triggered_alerts
			WHERE alert_id = $1 AND sample_timestamp = $2
		`
		if err := tx.QueryRow(existing, alertID, sampleTimestamp).Scan(&t.ID, &t.TriggeredAt); err != nil {
			return nil, fmt.Errorf("failed to load existing triggered alert: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to create triggered alert: %w", err)
	}

	deactivate := `
		UPDATE alerts SET
			is_active = false,
			condition_first_met = NULL,
			condition_currently_met = false,
			updated_at = $2
		WHERE id = $1
	`
	if _, err := tx.Exec(deactivate, alertID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to deactivate alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trigger: %w", err)
	}
	return t, nil
}

const triggeredColumns = `
	t.id, t.alert_id, s.symbol, s.name, a.alert_type, a.condition,
	a.threshold_price, t.trigger_price, t.sample_timestamp, t.triggered_at,
	t.email_sent, t.email_sent_at, t.notification_error
`

// GetTriggeredAlertByID retrieves one triggered alert with alert context
func (db *DB) GetTriggeredAlertByID(id int) (*models.TriggeredAlert, error) {
	query := `
		SELECT ` + triggeredColumns + `
		FROM triggered_alerts t
		JOIN alerts a ON t.alert_id = a.id
		JOIN stocks s ON a.stock_id = s.id
		WHERE t.id = $1
	`
	triggered, err := db.scanTriggeredAlerts(db.conn.Query(query, id))
	if err != nil {
		return nil, err
	}
	if len(triggered) == 0 {
		return nil, fmt.Errorf("triggered alert not found: %d", id)
	}
	return triggered[0], nil
}

// GetTriggeredAlertsByUser retrieves a user's triggered alerts, newest
// first. days limits the window when positive.
func (db *DB) GetTriggeredAlertsByUser(userID, days int) ([]*models.TriggeredAlert, error) {
	query := `
		SELECT ` + triggeredColumns + `
		FROM triggered_alerts t
		JOIN alerts a ON t.alert_id = a.id
		JOIN stocks s ON a.stock_id = s.id
		WHERE a.user_id = $1
		  AND ($2 <= 0 OR t.triggered_at >= NOW() - $2 * INTERVAL '1 day')
		ORDER BY t.triggered_at DESC
	`
	return db.scanTriggeredAlerts(db.conn.Query(query, userID, days))
}

func (db *DB) scanTriggeredAlerts(rows *sql.Rows, err error) ([]*models.TriggeredAlert, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query triggered alerts: %w", err)
	}
	defer rows.Close()

	var triggered []*models.TriggeredAlert
	for rows.Next() {
		var t models.TriggeredAlert
		var emailSentAt sql.NullTime

		err := rows.Scan(
			&t.ID, &t.AlertID, &t.StockSymbol, &t.StockName, &t.AlertType,
			&t.Condition, &t.ThresholdPrice, &t.TriggerPrice, &t.SampleTimestamp,
			&t.TriggeredAt, &t.EmailSent, &emailSentAt, &t.NotificationError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan triggered alert: %w", err)
		}

		if emailSentAt.Valid {
			t.EmailSentAt = &emailSentAt.Time
		}

		triggered = append(triggered, &t)
	}

	return triggered, nil
}

// GetUserForAlert returns the owner of an alert, for notification delivery
func (db *DB) GetUserForAlert(alertID int) (*models.User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.password_hash, u.first_name, u.last_name, u.created_at
		FROM users u
		JOIN alerts a ON a.user_id = u.id
		WHERE a.id = $1
	`
	return db.scanUser(db.conn.QueryRow(query, alertID))
}

// MarkEmailSent records successful notification delivery
func (db *DB) MarkEmailSent(triggeredAlertID int) error {
	query := `
		UPDATE triggered_alerts SET email_sent = true, email_sent_at = $2, notification_error = ''
		WHERE id = $1
	`
	_, err := db.conn.Exec(query, triggeredAlertID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	return nil
}

// SetNotificationError records a failed notification attempt
func (db *DB) SetNotificationError(triggeredAlertID int, message string) error {
	query := `UPDATE triggered_alerts SET notification_error = $2 WHERE id = $1`
	_, err := db.conn.Exec(query, triggeredAlertID, message)
	if err != nil {
		return fmt.Errorf("failed to set notification error: %w", err)
	}
	return nil
}

// GetAlertStatistics aggregates a user's alert and trigger counts
func (db *DB) GetAlertStatistics(userID int) (*models.AlertStatistics, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_active),
			COUNT(*) FILTER (WHERE NOT is_active),
			COUNT(*) FILTER (WHERE alert_type = 'threshold'),
			COUNT(*) FILTER (WHERE alert_type = 'duration')
		FROM alerts
		WHERE user_id = $1
	`
	var stats models.AlertStatistics
	err := db.conn.QueryRow(query, userID).Scan(
		&stats.TotalAlerts, &stats.ActiveAlerts, &stats.InactiveAlerts,
		&stats.ThresholdAlerts, &stats.DurationAlerts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get alert statistics: %w", err)
	}

	triggeredQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE t.triggered_at >= NOW() - INTERVAL '7 days'),
			COUNT(*) FILTER (WHERE t.triggered_at >= NOW() - INTERVAL '30 days')
		FROM triggered_alerts t
		JOIN alerts a ON t.alert_id = a.id
		WHERE a.user_id = $1
	`
	err = db.conn.QueryRow(triggeredQuery, userID).Scan(
		&stats.TotalTriggered, &stats.TriggeredThisWeek, &stats.TriggeredThisMonth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get trigger statistics: %w", err)
	}

	return &stats, nil
}

// DeleteTriggeredAlertsOlderThan removes triggered alerts older than a cutoff
func (db *DB) DeleteTriggeredAlertsOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM triggered_alerts WHERE triggered_at < $1`
	result, err := db.conn.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old triggered alerts: %w", err)
	}
	return result.RowsAffected()
}
