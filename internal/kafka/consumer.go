package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/models"
)

// PaymentCallbackHandler applies one payment callback taken off the topic.
type PaymentCallbackHandler func(ctx context.Context, req *models.PaymentWebhookRequest) error

// Consumer reads provider payment callbacks that arrive through Kafka
// instead of the HTTP webhook.
type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewConsumer(cfg config.KafkaConfig, log *logger.Logger) (*Consumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	consumer, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECTED", cfg.PaymentCallbackTopic, fmt.Sprintf("Consumer group %s joined", cfg.GroupID))
	return &Consumer{
		consumer: consumer,
		topics:   []string{cfg.PaymentCallbackTopic},
		log:      log,
	}, nil
}

func (c *Consumer) ConsumePaymentCallbacks(ctx context.Context, handler PaymentCallbackHandler) error {
	consumerHandler := &paymentCallbackConsumer{handler: handler, retryDelay: callbackRetryDelay, log: c.log}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return nil
				}
				c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages, rejoining: %v", err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(consumerHandler.retryDelay):
				}
			}
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// callbackRetryDelay spaces out redelivery of a callback whose handling failed.
const callbackRetryDelay = 2 * time.Second

type paymentCallbackConsumer struct {
	handler    PaymentCallbackHandler
	retryDelay time.Duration
	log        *logger.Logger
}

func (h *paymentCallbackConsumer) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *paymentCallbackConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim marks malformed messages so they are not redelivered forever.
// A failed callback ends the claim without marking it or anything after it,
// so the next session resumes from that message.
func (h *paymentCallbackConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var req models.PaymentWebhookRequest
		if err := json.Unmarshal(message.Value, &req); err != nil || req.JobID == "" {
			h.log.Warn("KAFKA", fmt.Sprintf("Dropping malformed payment callback at offset %d", message.Offset))
			session.MarkMessage(message, "")
			continue
		}

		if err := h.handler(session.Context(), &req); err != nil {
			h.log.Error("KAFKA", fmt.Sprintf("Failed to handle payment callback for job %s at offset %d, will retry: %v", req.JobID, message.Offset, err))
			select {
			case <-session.Context().Done():
			case <-time.After(h.retryDelay):
			}
			return fmt.Errorf("payment callback at offset %d: %w", message.Offset, err)
		}

		session.MarkMessage(message, "")
	}

	return nil
}
