// Package messaging connects the risk engine to Kafka: transactions flow in
// from the core banking stream and alert events flow out.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

const headerEventType = "event_type"

// Producer publishes alert events keyed by grant id so every event of a
// subject lands on the same partition
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewProducer connects a synchronous producer to the brokers
func NewProducer(brokers []string, topic string, log *logger.Logger) (*Producer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = "grant-risk-service"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerWith(sp, topic, log), nil
}

// NewProducerWith wraps an existing sync producer
func NewProducerWith(sp sarama.SyncProducer, topic string, log *logger.Logger) *Producer {
	return &Producer{
		producer: sp,
		topic:    topic,
		log:      log.Named("alert_producer"),
	}
}

// PublishAlertEvent sends one event and waits for the broker ack
func (p *Producer) PublishAlertEvent(ctx context.Context, evt *domain.AlertEvent) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode alert event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.GrantID),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerEventType), Value: []byte(evt.EventType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}

	p.log.WithContext(ctx).Debug("alert event published",
		logger.StringField("event_type", string(evt.EventType)),
		logger.StringField("grant_id", evt.GrantID),
		logger.IntField("partition", int(partition)),
		logger.IntField("offset", int(offset)),
	)
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event. Used when Kafka is disabled.
type NopPublisher struct{}

// PublishAlertEvent does nothing
func (NopPublisher) PublishAlertEvent(context.Context, *domain.AlertEvent) error {
	return nil
}
