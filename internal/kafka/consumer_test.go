package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerting/internal/engine"
	"stock-alerting/internal/models"
)

type fakeIngestor struct {
	events []*models.PriceEvent
	err    error
}

func (f *fakeIngestor) Ingest(ctx context.Context, ev *models.PriceEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func priceMessage(t *testing.T, ev *models.PriceEvent) kafka.Message {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(ev.Symbol), Value: data}
}

func TestProcessMessageIngestsPriceEvent(t *testing.T) {
	ingestor := &fakeIngestor{}
	c := &Consumer{ingestor: ingestor}

	ev := &models.PriceEvent{
		EventType: models.EventTypePriceSample,
		Symbol:    "AAPL",
		Price:     "151.25",
		Timestamp: time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC),
	}

	err := c.processMessage(context.Background(), priceMessage(t, ev))
	require.NoError(t, err)
	require.Len(t, ingestor.events, 1)
	assert.Equal(t, "AAPL", ingestor.events[0].Symbol)
	assert.Equal(t, "151.25", ingestor.events[0].Price)
}

func TestProcessMessageSkipsOtherEventTypes(t *testing.T) {
	ingestor := &fakeIngestor{}
	c := &Consumer{ingestor: ingestor}

	ev := &models.PriceEvent{EventType: "SOMETHING_ELSE", Symbol: "AAPL", Price: "151.25"}

	err := c.processMessage(context.Background(), priceMessage(t, ev))
	require.NoError(t, err)
	assert.Empty(t, ingestor.events)
}

func TestProcessMessageRejectsMalformedJSON(t *testing.T) {
	c := &Consumer{ingestor: &fakeIngestor{}}

	err := c.processMessage(context.Background(), kafka.Message{Value: []byte("{not json")})
	assert.Error(t, err)
}

func TestProcessMessageDropsOutOfOrderSamples(t *testing.T) {
	ingestor := &fakeIngestor{
		err: fmt.Errorf("%w: AAPL", engine.ErrOutOfOrderSample),
	}
	c := &Consumer{ingestor: ingestor}

	ev := &models.PriceEvent{EventType: models.EventTypePriceSample, Symbol: "AAPL", Price: "151.25"}

	// Out-of-order samples are dropped, not retried
	err := c.processMessage(context.Background(), priceMessage(t, ev))
	assert.NoError(t, err)
}

func TestProcessMessagePropagatesIngestErrors(t *testing.T) {
	ingestor := &fakeIngestor{err: errors.New("db down")}
	c := &Consumer{ingestor: ingestor}

	ev := &models.PriceEvent{EventType: models.EventTypePriceSample, Symbol: "AAPL", Price: "151.25"}

	err := c.processMessage(context.Background(), priceMessage(t, ev))
	assert.Error(t, err)
}
