// Package kafka publishes scan events to a Kafka topic with
// confluent-kafka-go.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

// flushTimeoutMs bounds how long Close waits for queued messages.
const flushTimeoutMs = 5000

// ProducerConfig holds broker and topic settings.
type ProducerConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Acks     string
}

func (cfg ProducerConfig) configMap() (*kafka.ConfigMap, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	cm := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
	}
	if cfg.ClientID != "" {
		_ = cm.SetKey("client.id", cfg.ClientID)
	}
	if cfg.Acks != "" {
		_ = cm.SetKey("acks", cfg.Acks)
	}
	return cm, nil
}

// Producer wraps a kafka.Producer bound to one topic. Delivery failures are
// reported asynchronously through the logger.
type Producer struct {
	p      *kafka.Producer
	topic  string
	logger *slog.Logger
	done   chan struct{}
}

// NewProducer creates the producer and starts its delivery report loop.
func NewProducer(cfg ProducerConfig, logger *slog.Logger) (*Producer, error) {
	cm, err := cfg.configMap()
	if err != nil {
		return nil, err
	}
	p, err := kafka.NewProducer(cm)
	if err != nil {
		return nil, fmt.Errorf("kafka: create producer: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	pr := &Producer{
		p:      p,
		topic:  cfg.Topic,
		logger: logger.With(slog.String("component", "kafka")),
		done:   make(chan struct{}),
	}
	go pr.deliveryReports()
	return pr, nil
}

// Topic returns the configured topic.
func (pr *Producer) Topic() string {
	return pr.topic
}

func (pr *Producer) deliveryReports() {
	defer close(pr.done)
	for e := range pr.p.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				pr.logger.Error("message delivery failed",
					slog.String("key", string(ev.Key)),
					slog.String("error", ev.TopicPartition.Error.Error()),
				)
			}
		case kafka.Error:
			pr.logger.Warn("producer error", slog.String("error", ev.Error()))
		}
	}
}

// Produce enqueues one message. It returns once librdkafka accepted it;
// delivery is confirmed asynchronously.
func (pr *Producer) Produce(ctx context.Context, key string, value []byte, headers map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := newMessage(pr.topic, key, value, headers)
	if err := pr.p.Produce(msg, nil); err != nil {
		return fmt.Errorf("kafka: produce %s: %w", key, err)
	}
	return nil
}

// Close flushes pending messages and shuts the producer down.
func (pr *Producer) Close() {
	if remaining := pr.p.Flush(flushTimeoutMs); remaining > 0 {
		pr.logger.Warn("unflushed messages on close", slog.Int("remaining", remaining))
	}
	pr.p.Close()
	<-pr.done
}

func newMessage(topic, key string, value []byte, headers map[string]string) *kafka.Message {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return msg
}
