// Package stream publishes canonical alerts onto a Kafka topic for
// downstream consumers.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/kealoha/emergency-alert-hub/internal/models"
)

// Publisher writes alerts to a topic, keyed by external id so updates to
// the same alert land on the same partition. A nil Publisher is a no-op,
// which keeps streaming optional.
type Publisher struct {
	writer *kafkago.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafkago.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, alert *models.Alert) error {
	if p == nil {
		return nil
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("error marshaling alert %s: %w", alert.ExternalID, err)
	}

	msg := kafkago.Message{
		Key:   []byte(alert.ExternalID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "severity", Value: []byte(alert.Severity)},
			{Key: "category", Value: []byte(alert.Category)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("error publishing alert %s: %w", alert.ExternalID, err)
	}

	slog.Debug("alert published", "alert", alert.ExternalID, "topic", p.writer.Topic)
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
