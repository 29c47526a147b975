package kafka

import (
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/income-clarity/healthwatch/internal/platform/logger"
	"github.com/income-clarity/healthwatch/internal/shared/events"
)

// EventPublisher streams monitoring events to Kafka. It subscribes to the
// engine's event bus, so a slow or unavailable broker never blocks the
// collection pipeline.
type EventPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	logger   logger.Logger
	done     chan struct{}
}

// Config holds Kafka configuration
type Config struct {
	Brokers []string
	Topic   string
}

// NewEventPublisher creates a Kafka-backed event publisher.
func NewEventPublisher(cfg Config, log logger.Logger) (*EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	p := &EventPublisher{
		producer: producer,
		topic:    cfg.Topic,
		logger:   log,
		done:     make(chan struct{}),
	}
	go p.drainErrors()

	return p, nil
}

// Run consumes the subscription channel until it closes.
func (p *EventPublisher) Run(sub <-chan events.Event) {
	for ev := range sub {
		p.publish(ev)
	}
}

func (p *EventPublisher) publish(ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("Failed to serialize event", "event_type", ev.Type, "error", err)
		return
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Source),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("eventType"), Value: []byte(ev.Type)},
		},
		Timestamp: ev.Timestamp,
	}
}

func (p *EventPublisher) drainErrors() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			p.logger.Error("Kafka publish failed", "error", err)
		case <-p.done:
			return
		}
	}
}

// Close stops the producer.
func (p *EventPublisher) Close() error {
	close(p.done)
	return p.producer.Close()
}
