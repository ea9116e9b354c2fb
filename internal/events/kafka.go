package events

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"

	"tribunal/pkg/errors"
	"tribunal/pkg/logger"
)

// KafkaNotifier publishes decision events to a Kafka topic as JSON.
type KafkaNotifier struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// Compile-time check
var _ Notifier = (*KafkaNotifier)(nil)

// KafkaConfig holds notifier configuration.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// NewKafkaNotifier creates a Kafka-backed notifier.
func NewKafkaNotifier(cfg KafkaConfig) *KafkaNotifier {
	topic := cfg.Topic
	if topic == "" {
		topic = TopicDecisionMade
	}

	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
			Async:    false, // Synchronous for reliability
		},
		log: logger.Get().With("component", "kafka_notifier"),
	}
}

// NotifyDecision publishes the event, keyed by round number.
func (n *KafkaNotifier) NotifyDecision(ctx context.Context, event DecisionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal decision event")
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(event.Round)),
		Value: data,
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.log.Errorf("Failed to publish decision event: %v", err)
		return errors.Wrap(errors.ErrNotifyFailed, err.Error())
	}

	n.log.Debugf("Published decision event for round %d", event.Round)
	return nil
}

// Close closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
