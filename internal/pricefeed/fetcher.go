package pricefeed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"stock-alerting/internal/logger"
	"stock-alerting/internal/metrics"
	"stock-alerting/internal/models"
)

// StockLister provides the stocks to poll
type StockLister interface {
	GetActiveStocks(symbolFilter string) ([]*models.Stock, error)
}

// SamplePublisher publishes fetched samples for ingestion
type SamplePublisher interface {
	PublishPriceSample(ctx context.Context, ev *models.PriceEvent) error
}

// RequestCounter tracks external API usage per day
type RequestCounter interface {
	IncrementRequestCount(ctx context.Context, day time.Time) (int64, error)
}

// Config holds fetcher construction options
type Config struct {
	BaseURL    string
	APIKey     string
	Interval   time.Duration
	DailyLimit int

	Stocks    StockLister
	Publisher SamplePublisher
	Counter   RequestCounter
}

// Fetcher polls an external quote API for every active stock on a fixed
// interval and publishes the samples to Kafka for ingestion.
type Fetcher struct {
	client     *resty.Client
	apiKey     string
	interval   time.Duration
	dailyLimit int

	stocks    StockLister
	publisher SamplePublisher
	counter   RequestCounter

	stopChan chan struct{}
}

// New creates a fetcher
func New(cfg Config) *Fetcher {
	if cfg.Interval < time.Second {
		cfg.Interval = time.Minute
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2)

	return &Fetcher{
		client:     client,
		apiKey:     cfg.APIKey,
		interval:   cfg.Interval,
		dailyLimit: cfg.DailyLimit,
		stocks:     cfg.Stocks,
		publisher:  cfg.Publisher,
		counter:    cfg.Counter,
		stopChan:   make(chan struct{}),
	}
}

// Start begins polling in the background
func (f *Fetcher) Start() {
	log := logger.WithComponent("pricefeed")
	log.Info().Dur("interval", f.interval).Msg("starting price fetcher")

	go func() {
		f.fetchAll()

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				f.fetchAll()
			case <-f.stopChan:
				log.Info().Msg("price fetcher stopped")
				return
			}
		}
	}()
}

// Stop halts the polling loop
func (f *Fetcher) Stop() {
	close(f.stopChan)
}

func (f *Fetcher) fetchAll() {
	log := logger.WithComponent("pricefeed")
	ctx, cancel := context.WithTimeout(context.Background(), f.interval)
	defer cancel()

	stocks, err := f.stocks.GetActiveStocks("")
	if err != nil {
		log.Error().Err(err).Msg("failed to list active stocks")
		return
	}
	if len(stocks) == 0 {
		log.Warn().Msg("no active stocks to poll")
		return
	}

	fetched := 0
	for _, stock := range stocks {
		if f.counter != nil && f.dailyLimit > 0 {
			count, err := f.counter.IncrementRequestCount(ctx, time.Now().UTC())
			if err != nil {
				log.Warn().Err(err).Msg("failed to count API request")
			} else if count > int64(f.dailyLimit) {
				metrics.QuoteFetchesTotal.WithLabelValues("limited").Inc()
				log.Warn().Int64("count", count).Msg("daily API request limit reached, skipping remaining symbols")
				return
			}
		}

		if err := f.fetchOne(ctx, stock.Symbol); err != nil {
			metrics.QuoteFetchesTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Str("symbol", stock.Symbol).Msg("failed to fetch quote")
			continue
		}
		metrics.QuoteFetchesTotal.WithLabelValues("success").Inc()
		fetched++
	}

	log.Info().Int("fetched", fetched).Int("total", len(stocks)).Msg("price poll completed")
}

type quoteResponse struct {
	Price   string `json:"price"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (f *Fetcher) fetchOne(ctx context.Context, symbol string) error {
	var quote quoteResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"apikey": f.apiKey,
		}).
		SetResult(&quote).
		Get("/price")
	if err != nil {
		return fmt.Errorf("quote request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("quote request returned %s", resp.Status())
	}
	if quote.Price == "" {
		return fmt.Errorf("no price in response for %s: %s", symbol, quote.Message)
	}

	event := &models.PriceEvent{
		Symbol:    symbol,
		Price:     quote.Price,
		Timestamp: time.Now().UTC(),
	}
	if err := f.publisher.PublishPriceSample(ctx, event); err != nil {
		return fmt.Errorf("failed to publish sample: %w", err)
	}
	return nil
}
