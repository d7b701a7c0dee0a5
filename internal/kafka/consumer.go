package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"stock-alerting/internal/engine"
	"stock-alerting/internal/logger"
	"stock-alerting/internal/models"
)

// SampleIngestor receives validated price events in partition order
type SampleIngestor interface {
	Ingest(ctx context.Context, ev *models.PriceEvent) error
}

// Consumer feeds price samples from Kafka into the evaluation engine.
// Messages are keyed by symbol, so reading a partition sequentially
// preserves per-stock timestamp order.
type Consumer struct {
	reader   *kafka.Reader
	ingestor SampleIngestor
}

// NewConsumer creates a Kafka consumer for price sample events
func NewConsumer(brokers []string, topic, groupID string, ingestor SampleIngestor) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:   reader,
		ingestor: ingestor,
	}
}

// Start consumes messages until the context is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log := logger.WithComponent("price_consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("starting price sample consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("price sample consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("error processing message")
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal price event: %w", err)
	}

	if event.EventType != models.EventTypePriceSample {
		return nil
	}

	err := c.ingestor.Ingest(ctx, &event)
	if errors.Is(err, engine.ErrOutOfOrderSample) {
		// Dropped by contract; never forwarded to evaluation
		log := logger.WithComponent("price_consumer")
		log.Warn().
			Str("symbol", event.Symbol).
			Time("timestamp", event.Timestamp).
			Msg("dropping out-of-order sample")
		return nil
	}
	return err
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
