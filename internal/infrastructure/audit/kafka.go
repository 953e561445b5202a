// Package audit publishes security events for downstream consumers. The
// publisher is strictly fire-and-forget: a broker outage degrades the audit
// trail, never the authentication path.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/matt-iam/iam-api/internal/core/ports"
)

const publishTimeout = 5 * time.Second

// KafkaPublisher writes audit events to a Kafka topic, keyed by subject so
// events for one account stay in order within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, log zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        true,
		},
		log: log,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event ports.AuditEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error().Err(err).Str("kind", event.Kind).Msg("audit event marshal failed")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.Subject),
		Value: payload,
	}); err != nil {
		p.log.Warn().Err(err).Str("kind", event.Kind).Msg("audit event publish failed")
	}
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ports.AuditEvent) {}
