package database

import (
	"database/sql"
	"fmt"
	"time"

	"stock-alerting/internal/models"
)

// CreateStock inserts a stock, updating name/exchange if the symbol exists
func (db *DB) CreateStock(s *models.Stock) error {
	query := `
		INSERT INTO stocks (symbol, name, exchange, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			exchange = EXCLUDED.exchange,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`
	now := time.Now()
	err := db.conn.QueryRow(query, s.Symbol, s.Name, s.Exchange, s.IsActive, now).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create stock: %w", err)
	}
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetStockByID retrieves a stock by ID
func (db *DB) GetStockByID(id int) (*models.Stock, error) {
	query := `
		SELECT id, symbol, name, exchange, is_active, created_at, updated_at
		FROM stocks
		WHERE id = $1
	`
	var s models.Stock
	err := db.conn.QueryRow(query, id).Scan(
		&s.ID, &s.Symbol, &s.Name, &s.Exchange, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &s, nil
}

// GetStockBySymbol retrieves a stock by symbol
func (db *DB) GetStockBySymbol(symbol string) (*models.Stock, error) {
	query := `
		SELECT id, symbol, name, exchange, is_active, created_at, updated_at
		FROM stocks
		WHERE symbol = $1
	`
	var s models.Stock
	err := db.conn.QueryRow(query, symbol).Scan(
		&s.ID, &s.Symbol, &s.Name, &s.Exchange, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("stock not found: %s", symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &s, nil
}

// GetActiveStocks retrieves all active stocks, optionally filtered by a
// symbol substring
func (db *DB) GetActiveStocks(symbolFilter string) ([]*models.Stock, error) {
	query := `
		SELECT id, symbol, name, exchange, is_active, created_at, updated_at
		FROM stocks
		WHERE is_active = true AND ($1 = '' OR symbol ILIKE '%' || $1 || '%')
		ORDER BY symbol ASC
	`
	rows, err := db.conn.Query(query, symbolFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	defer rows.Close()

	var stocks []*models.Stock
	for rows.Next() {
		var s models.Stock
		err := rows.Scan(&s.ID, &s.Symbol, &s.Name, &s.Exchange, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock: %w", err)
		}
		stocks = append(stocks, &s)
	}

	return stocks, nil
}

// SetStockActive toggles the operator-controlled active flag
func (db *DB) SetStockActive(symbol string, active bool) error {
	query := `UPDATE stocks SET is_active = $2, updated_at = $3 WHERE symbol = $1`
	result, err := db.conn.Exec(query, symbol, active, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set stock active: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("stock not found: %s", symbol)
	}
	return nil
}
