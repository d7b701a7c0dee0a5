package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"stock-alerting/internal/metrics"
	"stock-alerting/internal/models"
)

// Producer publishes events to one Kafka topic
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a Kafka producer for a topic
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // key by symbol keeps one stock on one partition
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishPriceSample publishes a price sample keyed by symbol
func (p *Producer) PublishPriceSample(ctx context.Context, ev *models.PriceEvent) error {
	ev.EventType = models.EventTypePriceSample
	return p.publish(ctx, ev.Symbol, ev)
}

// PublishAlertTriggered publishes a trigger event keyed by alert ID
func (p *Producer) PublishAlertTriggered(ctx context.Context, alert *models.Alert, triggered *models.TriggeredAlert) error {
	event := models.TriggerEvent{
		EventType:        models.EventTypeAlertTriggered,
		TriggeredAlertID: triggered.ID,
		AlertID:          alert.ID,
		Symbol:           alert.StockSymbol,
		AlertType:        alert.AlertType,
		Condition:        alert.Condition,
		ThresholdPrice:   alert.ThresholdPrice,
		TriggerPrice:     triggered.TriggerPrice,
		TriggeredAt:      triggered.TriggeredAt,
	}
	if alert.DurationMinutes != nil {
		event.DurationMinutes = *alert.DurationMinutes
	}
	return p.publish(ctx, strconv.Itoa(alert.ID), event)
}

func (p *Producer) publish(ctx context.Context, key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaPublishTotal.WithLabelValues(p.topic, "failed").Inc()
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	metrics.KafkaPublishTotal.WithLabelValues(p.topic, "success").Inc()
	return nil
}

// Close closes the Kafka producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
