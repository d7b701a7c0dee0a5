package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock represents a stock the system monitors
type Stock struct {
	ID        int       `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Exchange  string    `json:"exchange,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PriceSample is one price observation for a stock at a point in time.
// Samples are append-only and strictly ordered by timestamp per stock.
type PriceSample struct {
	ID        int              `json:"id"`
	StockID   int              `json:"stock_id"`
	Symbol    string           `json:"symbol,omitempty"`
	Price     decimal.Decimal  `json:"price"`
	Open      *decimal.Decimal `json:"open_price,omitempty"`
	High      *decimal.Decimal `json:"high_price,omitempty"`
	Low       *decimal.Decimal `json:"low_price,omitempty"`
	Close     *decimal.Decimal `json:"close_price,omitempty"`
	Volume    *int64           `json:"volume,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	CreatedAt time.Time        `json:"created_at"`
}

// ClosePrice returns the close price if present, otherwise the last traded
// price. Alert conditions are evaluated against this value.
func (p *PriceSample) ClosePrice() decimal.Decimal {
	if p.Close != nil {
		return *p.Close
	}
	return p.Price
}

// PriceEvent is the Kafka message carrying one price sample.
// Messages are keyed by symbol so one stock's samples stay on one partition.
type PriceEvent struct {
	EventType string           `json:"event_type"`
	Symbol    string           `json:"symbol"`
	Price     string           `json:"price"`
	Open      *decimal.Decimal `json:"open,omitempty"`
	High      *decimal.Decimal `json:"high,omitempty"`
	Low       *decimal.Decimal `json:"low,omitempty"`
	Close     *decimal.Decimal `json:"close,omitempty"`
	Volume    *int64           `json:"volume,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventTypePriceSample is the event_type carried by PriceEvent messages
const EventTypePriceSample = "PRICE_SAMPLE"
