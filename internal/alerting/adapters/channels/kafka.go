package channels

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/income-clarity/healthwatch/internal/alerting/domain/model"
)

// KafkaChannel publishes alerts to a dedicated topic, separate from the
// monitoring event stream, so downstream alert consumers do not have to
// filter the full event firehose.
type KafkaChannel struct {
	name     string
	topic    string
	filter   severityFilter
	producer sarama.SyncProducer
}

// NewKafkaChannel creates a Kafka-backed alert sink.
func NewKafkaChannel(name, topic string, severities []string, brokers []string) (*KafkaChannel, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create alert producer: %w", err)
	}

	return &KafkaChannel{
		name:     name,
		topic:    topic,
		filter:   newSeverityFilter(severities),
		producer: producer,
	}, nil
}

func (c *KafkaChannel) Name() string { return c.name }

func (c *KafkaChannel) Accepts(severity model.Severity) bool {
	return c.filter.Accepts(severity)
}

// Send publishes one alert keyed by category so related alerts land in the
// same partition.
func (c *KafkaChannel) Send(ctx context.Context, alert *model.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	_, _, err = c.producer.SendMessage(&sarama.ProducerMessage{
		Topic: c.topic,
		Key:   sarama.StringEncoder(alert.Category),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close stops the producer.
func (c *KafkaChannel) Close() error {
	return c.producer.Close()
}
