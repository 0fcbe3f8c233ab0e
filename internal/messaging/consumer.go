package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/banking/grant-risk-service/internal/config"
	"github.com/banking/grant-risk-service/internal/domain"
	"github.com/banking/grant-risk-service/internal/pkg/logger"
)

// TransactionSink stores decoded transactions
type TransactionSink interface {
	IngestTransactions(ctx context.Context, txs []domain.Transaction) (int, error)
}

// Consumer reads transactions from the core banking topic into the store
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler *transactionHandler
	log     *logger.Logger
}

// NewConsumer joins the configured consumer group
func NewConsumer(cfg config.KafkaConfig, sink TransactionSink, log *logger.Logger) (*Consumer, error) {
	scfg := sarama.NewConfig()
	scfg.ClientID = "grant-risk-service"
	scfg.Consumer.Return.Errors = true
	scfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	scfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, scfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	log = log.Named("transaction_consumer")
	return &Consumer{
		group:   group,
		topic:   cfg.TransactionTopic,
		handler: &transactionHandler{sink: sink, log: log},
		log:     log,
	}, nil
}

// Run consumes until ctx is cancelled or the group is closed
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("kafka consumer error", logger.ErrorField(err))
		}
	}()

	c.log.Info("consuming transactions", logger.StringField("topic", c.topic))
	for {
		if err := c.group.Consume(ctx, []string{c.topic}, c.handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("consume %s: %w", c.topic, err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group
func (c *Consumer) Close() error {
	return c.group.Close()
}

type transactionHandler struct {
	sink TransactionSink
	log  *logger.Logger
}

func (h *transactionHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *transactionHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks every message it has dealt with. A storage failure ends
// the claim without marking, so the message is redelivered after rebalance.
func (h *transactionHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.handle(sess.Context(), msg); err != nil {
				return err
			}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

// handle stores one message. Undecodable or invalid messages are logged and
// skipped so one bad record cannot stall the partition; only storage
// failures are returned.
func (h *transactionHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	txs, err := decodeTransactions(msg.Value)
	if err != nil {
		h.log.Warn("skipping undecodable transaction message",
			logger.StringField("topic", msg.Topic),
			logger.IntField("partition", int(msg.Partition)),
			logger.IntField("offset", int(msg.Offset)),
			logger.ErrorField(err),
		)
		return nil
	}

	ctx = context.WithValue(ctx, logger.RequestIDKey, uuid.NewString())
	_, err = h.sink.IngestTransactions(ctx, txs)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidInput):
		h.log.Warn("skipping invalid transaction message",
			logger.IntField("partition", int(msg.Partition)),
			logger.IntField("offset", int(msg.Offset)),
			logger.ErrorField(err),
		)
		return nil
	default:
		h.log.Error("failed to ingest transaction message",
			logger.IntField("partition", int(msg.Partition)),
			logger.IntField("offset", int(msg.Offset)),
			logger.ErrorField(err),
		)
		return fmt.Errorf("ingest offset %d: %w", msg.Offset, err)
	}
}

// decodeTransactions accepts a single transaction object or an array of them
func decodeTransactions(value []byte) ([]domain.Transaction, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return nil, errors.New("empty message")
	}

	if value[0] == '[' {
		var txs []domain.Transaction
		if err := json.Unmarshal(value, &txs); err != nil {
			return nil, err
		}
		for i := range txs {
			txs[i].Direction = streamDirection(txs[i].Direction)
		}
		return txs, nil
	}

	var tx domain.Transaction
	if err := json.Unmarshal(value, &tx); err != nil {
		return nil, err
	}
	tx.Direction = streamDirection(tx.Direction)
	return []domain.Transaction{tx}, nil
}

// streamDirection maps the core banking stream's INBOUND/OUTBOUND and
// CREDIT/DEBIT vocabulary onto in/out
func streamDirection(d domain.Direction) domain.Direction {
	switch strings.ToLower(strings.TrimSpace(string(d))) {
	case "in", "inbound", "credit":
		return domain.DirectionIn
	case "out", "outbound", "debit":
		return domain.DirectionOut
	default:
		return d
	}
}
