package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerting/internal/models"
)

type trackingState struct {
	firstMet     *time.Time
	currentlyMet bool
}

// fakeStore is an in-memory Store for engine tests
type fakeStore struct {
	mu       sync.Mutex
	stocks   map[string]*models.Stock
	alerts   map[int]*models.Alert
	samples  []*models.PriceSample
	fired    []*models.TriggeredAlert
	tracking map[int]trackingState

	fireErr          error
	fireAttempts     int
	nextFiredID      int
	trackingResetErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		stocks:   make(map[string]*models.Stock),
		alerts:   make(map[int]*models.Alert),
		tracking: make(map[int]trackingState),
	}
}

func (s *fakeStore) addStock(id int, symbol string) *models.Stock {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock := &models.Stock{ID: id, Symbol: symbol, IsActive: true}
	s.stocks[symbol] = stock
	return stock
}

func (s *fakeStore) addAlert(a *models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts[a.ID] = a
}

func (s *fakeStore) GetStockBySymbol(symbol string) (*models.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stock, ok := s.stocks[symbol]
	if !ok {
		return nil, errors.New("stock not found")
	}
	return stock, nil
}

func (s *fakeStore) GetActiveAlertsByStockID(stockID int) ([]*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var alerts []*models.Alert
	for _, a := range s.alerts {
		if a.StockID == stockID && a.IsActive {
			copied := *a
			alerts = append(alerts, &copied)
		}
	}
	return alerts, nil
}

func (s *fakeStore) GetLatestSampleTimestamp(stockID int) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest time.Time
	for _, p := range s.samples {
		if p.StockID == stockID && p.Timestamp.After(latest) {
			latest = p.Timestamp
		}
	}
	return latest, nil
}

func (s *fakeStore) CreatePriceSample(p *models.PriceSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, p)
	return nil
}

func (s *fakeStore) UpdateAlertTracking(alertID int, firstMet *time.Time, currentlyMet bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !currentlyMet && s.trackingResetErr != nil {
		return s.trackingResetErr
	}
	s.tracking[alertID] = trackingState{firstMet: firstMet, currentlyMet: currentlyMet}
	if a, ok := s.alerts[alertID]; ok {
		a.ConditionFirstMet = firstMet
		a.ConditionCurrentlyMet = currentlyMet
	}
	return nil
}

func (s *fakeStore) FireAlert(alertID int, triggerPrice decimal.Decimal, sampleTimestamp time.Time) (*models.TriggeredAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fireAttempts++
	if s.fireErr != nil {
		return nil, s.fireErr
	}

	for _, f := range s.fired {
		if f.AlertID == alertID && f.SampleTimestamp.Equal(sampleTimestamp) {
			return f, nil
		}
	}

	s.nextFiredID++
	triggered := &models.TriggeredAlert{
		ID:              s.nextFiredID,
		AlertID:         alertID,
		TriggerPrice:    triggerPrice,
		SampleTimestamp: sampleTimestamp,
		TriggeredAt:     time.Now(),
	}
	s.fired = append(s.fired, triggered)

	if a, ok := s.alerts[alertID]; ok {
		a.IsActive = false
		a.ConditionFirstMet = nil
		a.ConditionCurrentlyMet = false
	}
	return triggered, nil
}

func (s *fakeStore) firedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fired)
}

func (s *fakeStore) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fireAttempts
}

func (s *fakeStore) setFireErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fireErr = err
}

// fakePublisher collects published trigger events
type fakePublisher struct {
	mu     sync.Mutex
	events []*models.TriggeredAlert
	err    error
}

func (p *fakePublisher) PublishAlertTriggered(ctx context.Context, alert *models.Alert, triggered *models.TriggeredAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, triggered)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func priceEvent(symbol, price string, ts time.Time) *models.PriceEvent {
	return &models.PriceEvent{
		EventType: models.EventTypePriceSample,
		Symbol:    symbol,
		Price:     price,
		Timestamp: ts,
	}
}

func thresholdAlert(id, stockID int, condition, threshold string) *models.Alert {
	return &models.Alert{
		ID:             id,
		StockID:        stockID,
		AlertType:      models.AlertTypeThreshold,
		Condition:      condition,
		ThresholdPrice: decimal.RequireFromString(threshold),
		IsActive:       true,
	}
}

func durationAlert(id, stockID int, condition, threshold string, minutes int) *models.Alert {
	a := thresholdAlert(id, stockID, condition, threshold)
	a.AlertType = models.AlertTypeDuration
	a.DurationMinutes = &minutes
	return a
}

func TestThresholdAlertFiresOnceAndDeactivates(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(thresholdAlert(10, 1, models.ConditionAbove, "150.00"))
	pub := &fakePublisher{}

	e := New(Config{Store: store, Publisher: pub})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "149.50", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "150.25", t0.Add(time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0.Add(2*time.Minute))))
	e.Stop()

	require.Equal(t, 1, store.firedCount(), "satisfied samples after the trigger must not fire again")
	triggered := store.fired[0]
	assert.Equal(t, 10, triggered.AlertID)
	assert.True(t, decimal.RequireFromString("150.25").Equal(triggered.TriggerPrice))
	assert.Equal(t, t0.Add(time.Minute), triggered.SampleTimestamp)

	assert.False(t, store.alerts[10].IsActive, "firing must deactivate the alert")
	assert.Equal(t, 1, pub.count())
}

func TestThresholdEqualityDoesNotFire(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(thresholdAlert(10, 1, models.ConditionAbove, "150.00"))

	e := New(Config{Store: store})
	ctx := context.Background()

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "150.00", time.Now().UTC())))
	e.Stop()

	assert.Zero(t, store.firedCount())
	assert.True(t, store.alerts[10].IsActive)
}

func TestDurationAlertFiresAfterFullHold(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "152.00", t0.Add(10*time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "153.00", t0.Add(20*time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "154.00", t0.Add(30*time.Minute))))
	e.Stop()

	require.Equal(t, 1, store.firedCount())
	triggered := store.fired[0]
	assert.True(t, decimal.RequireFromString("154.00").Equal(triggered.TriggerPrice))
	assert.Equal(t, t0.Add(30*time.Minute), triggered.SampleTimestamp)
	assert.False(t, store.alerts[10].IsActive)
}

func TestDurationAlertViolationResetsStreak(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "149.00", t0.Add(15*time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0.Add(30*time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "152.00", t0.Add(45*time.Minute))))
	e.Stop()

	assert.Zero(t, store.firedCount(), "45 minutes after t0 is only 15 into the second streak")

	// Restart the streak clock: fires 30 minutes after the violation ended
	e2 := New(Config{Store: store})
	require.NoError(t, e2.Ingest(ctx, priceEvent("AAPL", "153.00", t0.Add(60*time.Minute))))
	e2.Stop()

	require.Equal(t, 1, store.firedCount())
	assert.Equal(t, t0.Add(60*time.Minute), store.fired[0].SampleTimestamp)
}

func TestDurationTrackingStatePersisted(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	e.Stop()

	store.mu.Lock()
	state, ok := store.tracking[10]
	store.mu.Unlock()
	require.True(t, ok, "streak start must be written through to the store")
	assert.True(t, state.currentlyMet)
	assert.Equal(t, t0, *state.firstMet)
}

func TestDurationAlertResumesFromPersistedStreak(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")

	// Simulates a restart: the store still holds a streak that started at t0
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	alert := durationAlert(10, 1, models.ConditionAbove, "150.00", 30)
	alert.ConditionFirstMet = &t0
	alert.ConditionCurrentlyMet = true
	store.addAlert(alert)

	e := New(Config{Store: store})
	require.NoError(t, e.Ingest(context.Background(), priceEvent("AAPL", "151.00", t0.Add(30*time.Minute))))
	e.Stop()

	require.Equal(t, 1, store.firedCount(), "persisted streak must count toward the duration")
}

func TestOutOfOrderSampleRejected(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(thresholdAlert(10, 1, models.ConditionAbove, "150.00"))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "149.00", t0)))

	err := e.Ingest(ctx, priceEvent("AAPL", "151.00", t0.Add(-time.Minute)))
	require.ErrorIs(t, err, ErrOutOfOrderSample)

	// Equal timestamps are also rejected
	err = e.Ingest(ctx, priceEvent("AAPL", "151.00", t0))
	require.ErrorIs(t, err, ErrOutOfOrderSample)
	e.Stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.samples, 1, "rejected samples must not be stored")
	assert.Empty(t, store.fired, "rejected samples must not reach evaluation")
}

func TestOutOfOrderCheckSeededFromStore(t *testing.T) {
	store := newFakeStore()
	stock := store.addStock(1, "AAPL")
	store.samples = append(store.samples, &models.PriceSample{
		StockID:   stock.ID,
		Price:     decimal.RequireFromString("149.00"),
		Timestamp: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	})

	e := New(Config{Store: store})
	err := e.Ingest(context.Background(), priceEvent("AAPL", "151.00", time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)))
	e.Stop()

	require.ErrorIs(t, err, ErrOutOfOrderSample)
}

func TestUnknownStockRejected(t *testing.T) {
	store := newFakeStore()
	e := New(Config{Store: store})

	err := e.Ingest(context.Background(), priceEvent("NOPE", "10.00", time.Now().UTC()))
	e.Stop()

	require.ErrorIs(t, err, ErrUnknownStock)
}

func TestFireFailureKeepsStreakAndRetries(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))
	store.setFireErr(errors.New("db down"))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "152.00", t0.Add(30*time.Minute))))

	// Wait for the failed attempt before restoring the store
	require.Eventually(t, func() bool { return store.attempts() >= 1 }, 2*time.Second, 10*time.Millisecond)
	store.setFireErr(nil)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "152.50", t0.Add(31*time.Minute))))
	e.Stop()

	require.Equal(t, 1, store.firedCount(), "streak survives a failed fire and retries")
	assert.Equal(t, t0.Add(31*time.Minute), store.fired[0].SampleTimestamp)
}

func TestPublishFailureDoesNotUndoTrigger(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(thresholdAlert(10, 1, models.ConditionAbove, "150.00"))
	pub := &fakePublisher{err: errors.New("kafka down")}

	e := New(Config{Store: store, Publisher: pub})
	require.NoError(t, e.Ingest(context.Background(), priceEvent("AAPL", "151.00", time.Now().UTC())))
	e.Stop()

	require.Equal(t, 1, store.firedCount(), "the trigger is durable before publishing")
	assert.False(t, store.alerts[10].IsActive)
}

func TestResetTrackingClearsStreak(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))

	// Wait for the streak to be persisted, then reset as the API does when
	// an alert is re-armed
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		state, ok := store.tracking[10]
		return ok && state.currentlyMet
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, e.ResetTracking(10))

	store.mu.Lock()
	state := store.tracking[10]
	store.mu.Unlock()
	assert.False(t, state.currentlyMet)
	assert.Nil(t, state.firstMet)

	// The old streak is gone: 30 minutes after t0 must not fire
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "152.00", t0.Add(30*time.Minute))))
	e.Stop()

	assert.Zero(t, store.firedCount())
}

func TestFailedTrackingResetDoesNotResurrectStreak(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addAlert(durationAlert(10, 1, models.ConditionAbove, "150.00", 30))

	// The reset write fails, so the store keeps showing the old streak
	store.trackingResetErr = errors.New("db down")

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "149.00", t0.Add(15*time.Minute))))
	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0.Add(30*time.Minute))))
	e.Stop()

	assert.Zero(t, store.firedCount(),
		"the stale persisted streak must not restore a broken hold")
}

func TestStopDuringConcurrentIngestIsSafe(t *testing.T) {
	store := newFakeStore()
	symbols := []string{"AAPL", "TSLA", "MSFT", "NVDA"}
	for i, symbol := range symbols {
		store.addStock(i+1, symbol)
	}

	e := New(Config{Store: store, QueueSize: 1})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = e.Ingest(ctx, priceEvent(symbol, "10.00", t0.Add(time.Duration(i)*time.Second)))
			}
		}(symbol)
	}

	e.Stop()
	wg.Wait()

	// A second Stop is a no-op
	e.Stop()
}

func TestDistinctStocksEvaluateIndependently(t *testing.T) {
	store := newFakeStore()
	store.addStock(1, "AAPL")
	store.addStock(2, "TSLA")
	store.addAlert(thresholdAlert(10, 1, models.ConditionAbove, "150.00"))
	store.addAlert(thresholdAlert(11, 2, models.ConditionBelow, "200.00"))

	e := New(Config{Store: store})
	ctx := context.Background()
	t0 := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

	require.NoError(t, e.Ingest(ctx, priceEvent("AAPL", "151.00", t0)))
	require.NoError(t, e.Ingest(ctx, priceEvent("TSLA", "199.00", t0)))
	e.Stop()

	require.Equal(t, 2, store.firedCount())
}
