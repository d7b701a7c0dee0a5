package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alerting/internal/logger"
	"stock-alerting/internal/metrics"
	"stock-alerting/internal/models"
)

// ErrOutOfOrderSample is returned when a sample's timestamp is not strictly
// greater than the last accepted timestamp for its stock.
var ErrOutOfOrderSample = errors.New("sample timestamp is not newer than last stored sample")

// ErrUnknownStock is returned when a sample references a symbol the store
// does not know or that is inactive.
var ErrUnknownStock = errors.New("unknown or inactive stock")

// Store is the persistence the engine depends on
type Store interface {
	GetStockBySymbol(symbol string) (*models.Stock, error)
	GetActiveAlertsByStockID(stockID int) ([]*models.Alert, error)
	GetLatestSampleTimestamp(stockID int) (time.Time, error)
	CreatePriceSample(p *models.PriceSample) error
	UpdateAlertTracking(alertID int, firstMet *time.Time, currentlyMet bool) error
	FireAlert(alertID int, triggerPrice decimal.Decimal, sampleTimestamp time.Time) (*models.TriggeredAlert, error)
}

// TriggerPublisher announces fired alerts downstream
type TriggerPublisher interface {
	PublishAlertTriggered(ctx context.Context, alert *models.Alert, triggered *models.TriggeredAlert) error
}

// PriceCache caches the latest accepted price per symbol
type PriceCache interface {
	SetLatestPrice(ctx context.Context, symbol string, price decimal.Decimal, ts time.Time) error
}

type job struct {
	stock  *models.Stock
	sample *models.PriceSample
}

// Engine evaluates active alerts against incoming price samples. Samples
// for one stock are funneled through one queue and one worker goroutine, so
// per-stock ordering and single-writer tracker access both hold; distinct
// stocks evaluate in parallel.
type Engine struct {
	store     Store
	publisher TriggerPublisher
	cache     PriceCache
	tracker   *DurationTracker

	queueSize int

	mu      sync.Mutex
	queues  map[string]chan job
	lastTS  map[string]time.Time
	stopped bool
	sending sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds engine construction options
type Config struct {
	Store     Store
	Publisher TriggerPublisher
	Cache     PriceCache
	QueueSize int
}

// New creates an engine. Publisher and Cache may be nil.
func New(cfg Config) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		cache:     cfg.Cache,
		tracker:   NewDurationTracker(),
		queueSize: cfg.QueueSize,
		queues:    make(map[string]chan job),
		lastTS:    make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Ingest validates, persists and queues one price sample for evaluation.
// Out-of-order samples are rejected with ErrOutOfOrderSample and have no
// effect on tracker state.
func (e *Engine) Ingest(ctx context.Context, ev *models.PriceEvent) error {
	stock, err := e.store.GetStockBySymbol(ev.Symbol)
	if err != nil {
		metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "failed").Inc()
		return fmt.Errorf("%w: %s", ErrUnknownStock, ev.Symbol)
	}

	price, err := decimal.NewFromString(ev.Price)
	if err != nil {
		metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "failed").Inc()
		return fmt.Errorf("invalid price %q: %w", ev.Price, err)
	}

	last, err := e.lastTimestamp(stock)
	if err != nil {
		metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "failed").Inc()
		return err
	}
	if !ev.Timestamp.After(last) {
		metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "out_of_order").Inc()
		return fmt.Errorf("%w: %s at %s (last %s)",
			ErrOutOfOrderSample, ev.Symbol, ev.Timestamp.Format(time.RFC3339), last.Format(time.RFC3339))
	}

	sample := &models.PriceSample{
		StockID:   stock.ID,
		Symbol:    stock.Symbol,
		Price:     price,
		Open:      ev.Open,
		High:      ev.High,
		Low:       ev.Low,
		Close:     ev.Close,
		Volume:    ev.Volume,
		Timestamp: ev.Timestamp,
	}
	if err := e.store.CreatePriceSample(sample); err != nil {
		metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "failed").Inc()
		return fmt.Errorf("failed to persist sample: %w", err)
	}

	e.setLastTimestamp(stock.Symbol, ev.Timestamp)
	metrics.SamplesIngestedTotal.WithLabelValues(ev.Symbol, "accepted").Inc()

	if e.cache != nil {
		if err := e.cache.SetLatestPrice(ctx, stock.Symbol, sample.ClosePrice(), sample.Timestamp); err != nil {
			log := logger.WithComponent("engine")
			log.Warn().Err(err).
				Str("symbol", stock.Symbol).Msg("failed to cache latest price")
		}
	}

	e.enqueue(stock, sample)
	return nil
}

// ResetTracking clears duration progress for an alert. Called when an alert
// is toggled from inactive to active so re-arming starts from Idle.
func (e *Engine) ResetTracking(alertID int) error {
	e.tracker.Reset(alertID)
	if err := e.store.UpdateAlertTracking(alertID, nil, false); err != nil {
		return fmt.Errorf("failed to reset tracking: %w", err)
	}
	return nil
}

// Stop drains the per-stock workers and blocks until they exit
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	// Sends registered before stopped was set must land before the queues
	// close; new ingests see stopped and drop.
	e.sending.Wait()

	e.mu.Lock()
	for _, ch := range e.queues {
		close(ch)
	}
	e.mu.Unlock()

	e.cancel()
	e.wg.Wait()
}

func (e *Engine) lastTimestamp(stock *models.Stock) (time.Time, error) {
	e.mu.Lock()
	ts, ok := e.lastTS[stock.Symbol]
	e.mu.Unlock()
	if ok {
		return ts, nil
	}

	ts, err := e.store.GetLatestSampleTimestamp(stock.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to load last sample timestamp: %w", err)
	}
	e.setLastTimestamp(stock.Symbol, ts)
	return ts, nil
}

func (e *Engine) setLastTimestamp(symbol string, ts time.Time) {
	e.mu.Lock()
	if existing, ok := e.lastTS[symbol]; !ok || ts.After(existing) {
		e.lastTS[symbol] = ts
	}
	e.mu.Unlock()
}

func (e *Engine) enqueue(stock *models.Stock, sample *models.PriceSample) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	ch, ok := e.queues[stock.Symbol]
	if !ok {
		ch = make(chan job, e.queueSize)
		e.queues[stock.Symbol] = ch
		e.wg.Add(1)
		go e.worker(stock.Symbol, ch)
	}
	// Registered under the lock so Stop cannot close the queue while this
	// send is pending.
	e.sending.Add(1)
	e.mu.Unlock()

	ch <- job{stock: stock, sample: sample}
	e.sending.Done()
}

func (e *Engine) worker(symbol string, ch chan job) {
	defer e.wg.Done()
	log := logger.WithComponent("engine").With().Str("symbol", symbol).Logger()

	for j := range ch {
		e.process(j)
	}
	log.Debug().Msg("evaluation worker stopped")
}

// process evaluates all active alerts for one accepted sample. A panic in
// evaluation is contained to this sample; tracker state keeps its prior
// value for anything not yet observed.
func (e *Engine) process(j job) {
	log := logger.WithComponent("engine").With().Str("symbol", j.stock.Symbol).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("evaluation panic recovered")
			metrics.PanicsRecovered.WithLabelValues("engine").Inc()
		}
	}()

	alerts, err := e.store.GetActiveAlertsByStockID(j.stock.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load active alerts")
		return
	}

	for _, alert := range alerts {
		e.evaluateAlert(alert, j.sample, log)
	}
}

func (e *Engine) evaluateAlert(alert *models.Alert, sample *models.PriceSample, log zerolog.Logger) {
	outcome := Evaluate(alert, sample)
	metrics.EvaluationsTotal.WithLabelValues(alert.AlertType, outcome.String()).Inc()

	switch alert.AlertType {
	case models.AlertTypeThreshold:
		if outcome == Satisfied {
			e.fire(alert, sample, log)
		}

	case models.AlertTypeDuration:
		// Restore a persisted streak after restart. Only alerts this
		// process has never observed qualify: once seen, the in-memory
		// cycle is authoritative even if a tracking write failed and the
		// store still shows the old streak.
		if alert.ConditionCurrentlyMet && alert.ConditionFirstMet != nil && !e.tracker.Seen(alert.ID) {
			e.tracker.Seed(alert.ID, *alert.ConditionFirstMet)
		}

		obs := e.tracker.Observe(alert.ID, outcome == Satisfied, sample.Timestamp, alert.Duration())

		if obs.Changed {
			if !obs.Accumulating {
				metrics.TrackerResetsTotal.Inc()
			}
			if err := e.store.UpdateAlertTracking(alert.ID, obs.Since, obs.Accumulating); err != nil {
				log.Warn().Err(err).Int("alert_id", alert.ID).Msg("failed to persist tracking state")
			}
		}

		if obs.ShouldFire {
			if e.fire(alert, sample, log) {
				e.tracker.Reset(alert.ID)
			}
		}
	}
}

// fire records the trigger atomically with deactivating the alert and
// publishes the event. Returns true only when the trigger was durably
// recorded.
func (e *Engine) fire(alert *models.Alert, sample *models.PriceSample, log zerolog.Logger) bool {
	triggered, err := e.store.FireAlert(alert.ID, sample.ClosePrice(), sample.Timestamp)
	if err != nil {
		log.Error().Err(err).Int("alert_id", alert.ID).Msg("failed to fire alert")
		return false
	}

	metrics.AlertsTriggeredTotal.WithLabelValues(alert.AlertType).Inc()
	log.Info().
		Int("alert_id", alert.ID).
		Str("alert_type", alert.AlertType).
		Str("condition", alert.Condition).
		Str("threshold", alert.ThresholdPrice.String()).
		Str("trigger_price", triggered.TriggerPrice.String()).
		Msg("alert triggered")

	if e.publisher != nil {
		ctx, cancel := context.WithTimeout(e.ctx, 5*time.Second)
		defer cancel()
		if err := e.publisher.PublishAlertTriggered(ctx, alert, triggered); err != nil {
			// The trigger is already durable; delivery retries belong to
			// the notifier, so a publish failure is logged, not rolled back.
			log.Error().Err(err).Int("triggered_alert_id", triggered.ID).Msg("failed to publish trigger event")
		}
	}

	return true
}
