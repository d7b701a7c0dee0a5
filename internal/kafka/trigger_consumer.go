package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"stock-alerting/internal/logger"
	"stock-alerting/internal/models"
)

// TriggerHandler handles fired-alert events, typically by delivering a
// notification. Handlers must be idempotent: the consumer redelivers on
// failure.
type TriggerHandler interface {
	HandleTrigger(ctx context.Context, ev *models.TriggerEvent) error
}

// TriggerConsumer feeds trigger events to a handler in its own consumer
// group, so notification failures never back-pressure the engine.
type TriggerConsumer struct {
	reader  *kafka.Reader
	handler TriggerHandler
}

// NewTriggerConsumer creates a Kafka consumer for alert trigger events
func NewTriggerConsumer(brokers []string, topic, groupID string, handler TriggerHandler) *TriggerConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &TriggerConsumer{
		reader:  reader,
		handler: handler,
	}
}

// Start consumes messages until the context is cancelled
func (c *TriggerConsumer) Start(ctx context.Context) error {
	log := logger.WithComponent("trigger_consumer")
	log.Info().Str("topic", c.reader.Config().Topic).Msg("starting trigger consumer")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("trigger consumer shutting down")
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

			var event models.TriggerEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal trigger event")
				continue
			}
			if event.EventType != models.EventTypeAlertTriggered {
				continue
			}

			if err := c.handler.HandleTrigger(ctx, &event); err != nil {
				log.Error().Err(err).
					Int("triggered_alert_id", event.TriggeredAlertID).
					Int("alert_id", event.AlertID).
					Msg("failed to handle trigger event")
			}
		}
	}
}

// Close closes the Kafka consumer
func (c *TriggerConsumer) Close() error {
	return c.reader.Close()
}
