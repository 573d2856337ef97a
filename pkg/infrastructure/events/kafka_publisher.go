package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher forwards events to a Kafka topic, keyed by stream so every
// event of one order lands on the same partition
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
	logger  *slog.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a writer for a comma separated broker list
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka topic cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("kafka publisher configured", "brokers", addrs, "topic", topic)
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(addrs...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
		},
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	messages := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		msg, err := encodeMessage(e)
		if err != nil {
			return err
		}
		messages = append(messages, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to publish %d events: %w", len(messages), err)
	}
	p.logger.Debug("events published", "count", len(messages), "topic", p.writer.Topic)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeMessage(e Event) (kafka.Message, error) {
	value, err := json.Marshal(BaseEvent{
		EventID:      e.ID(),
		EventType:    e.Type(),
		Stream:       e.StreamID(),
		EventData:    e.Data(),
		EventTime:    e.Timestamp(),
		EventVersion: e.Version(),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to encode event %s: %w", e.Type(), err)
	}
	return kafka.Message{
		Key:   []byte(e.StreamID()),
		Value: value,
		Time:  e.Timestamp(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(e.Type())},
		},
	}, nil
}
