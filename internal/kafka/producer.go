package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"print-gateway/internal/config"
	"print-gateway/internal/logger"
	"print-gateway/internal/models"
)

// Producer publishes job and payment events. In mock mode events are only logged.
type Producer struct {
	producer     sarama.SyncProducer
	mockMode     bool
	jobTopic     string
	paymentTopic string
	log          *logger.Logger
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) (*Producer, error) {
	if cfg.MockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{
			mockMode:     true,
			jobTopic:     cfg.JobEventsTopic,
			paymentTopic: cfg.PaymentEventsTopic,
			log:          log,
		}, nil
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", cfg.Brokers))
	return NewProducerWithClient(producer, cfg, log), nil
}

// NewProducerWithClient wraps an existing sarama producer.
func NewProducerWithClient(producer sarama.SyncProducer, cfg config.KafkaConfig, log *logger.Logger) *Producer {
	return &Producer{
		producer:     producer,
		jobTopic:     cfg.JobEventsTopic,
		paymentTopic: cfg.PaymentEventsTopic,
		log:          log,
	}
}

func (p *Producer) PublishJobEvent(event *models.JobEvent) error {
	return p.send(p.jobTopic, event.JobID, event.Type, event)
}

// PublishPaymentEvent keys by job id so a job's payments stay ordered on one partition.
func (p *Producer) PublishPaymentEvent(event *models.PaymentEvent) error {
	key := event.PaymentID
	if event.Payment != nil {
		key = event.Payment.JobID
	}
	return p.send(p.paymentTopic, key, event.Type, event)
}

func (p *Producer) send(topic, key, eventType string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing event: %s for %s", eventType, key))
		p.log.Debug("KAFKA", string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("%s for %s sent to partition %d at offset %d", eventType, key, partition, offset))
	return nil
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
