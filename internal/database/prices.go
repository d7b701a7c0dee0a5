package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-alerting/internal/models"
)

// CreatePriceSample appends a price sample. The unique (stock_id, timestamp)
// constraint rejects duplicates; ordering is enforced by the ingestor.
func (db *DB) CreatePriceSample(p *models.PriceSample) error {
	query := `
		INSERT INTO price_samples (stock_id, price, open, high, low, close, volume, timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query,
		p.StockID, p.Price, decimalPtr(p.Open), decimalPtr(p.High),
		decimalPtr(p.Low), decimalPtr(p.Close), p.Volume, p.Timestamp, now,
	).Scan(&p.ID)

	if err != nil {
		return fmt.Errorf("failed to create price sample: %w", err)
	}
	p.CreatedAt = now
	return nil
}

// GetLatestSample retrieves the most recent price sample for a stock
func (db *DB) GetLatestSample(stockID int) (*models.PriceSample, error) {
	query := `
		SELECT id, stock_id, price, open, high, low, close, volume, timestamp, created_at
		FROM price_samples
		WHERE stock_id = $1
		ORDER BY timestamp DESC
		LIMIT 1
	`
	samples, err := db.scanPriceSamples(db.conn.Query(query, stockID))
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no price samples for stock %d", stockID)
	}
	return samples[0], nil
}

// GetLatestSampleTimestamp returns the newest sample timestamp for a stock,
// or a zero time when no samples exist.
func (db *DB) GetLatestSampleTimestamp(stockID int) (time.Time, error) {
	query := `SELECT MAX(timestamp) FROM price_samples WHERE stock_id = $1`
	var ts sql.NullTime
	if err := db.conn.QueryRow(query, stockID).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest sample timestamp: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return ts.Time, nil
}

// GetSamplesSince retrieves samples for a stock newer than a cutoff,
// ordered newest-first
func (db *DB) GetSamplesSince(stockID int, since time.Time) ([]*models.PriceSample, error) {
	query := `
		SELECT id, stock_id, price, open, high, low, close, volume, timestamp, created_at
		FROM price_samples
		WHERE stock_id = $1 AND timestamp >= $2
		ORDER BY timestamp DESC
	`
	return db.scanPriceSamples(db.conn.Query(query, stockID, since))
}

func (db *DB) scanPriceSamples(rows *sql.Rows, err error) ([]*models.PriceSample, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query price samples: %w", err)
	}
	defer rows.Close()

	var samples []*models.PriceSample
	for rows.Next() {
		var p models.PriceSample
		var open, high, low, closePrice sql.NullString
		var volume sql.NullInt64

		err := rows.Scan(
			&p.ID, &p.StockID, &p.Price, &open, &high, &low, &closePrice,
			&volume, &p.Timestamp, &p.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price sample: %w", err)
		}

		p.Open = nullDecimal(open)
		p.High = nullDecimal(high)
		p.Low = nullDecimal(low)
		p.Close = nullDecimal(closePrice)
		if volume.Valid {
			p.Volume = &volume.Int64
		}

		samples = append(samples, &p)
	}

	return samples, nil
}

// DeleteSamplesOlderThan removes price samples older than a cutoff
func (db *DB) DeleteSamplesOlderThan(cutoff time.Time) (int64, error) {
	query := `DELETE FROM price_samples WHERE timestamp < $1`
	result, err := db.conn.Exec(query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price samples: %w", err)
	}
	return result.RowsAffected()
}

func decimalPtr(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func nullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}
