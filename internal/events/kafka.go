package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the emitter needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEmitter publishes events as JSON to a Kafka topic, keyed by subject so
// every event of one record lands on the same partition.
type KafkaEmitter struct {
	writer messageWriter
	topic  string
}

// NewKafkaEmitter builds an emitter writing to topic on brokers.
func NewKafkaEmitter(brokers []string, topic string) (*KafkaEmitter, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka emitter requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka emitter requires a topic")
	}
	return &KafkaEmitter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
		topic: topic,
	}, nil
}

// Emit publishes event.
func (k *KafkaEmitter) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: k.topic,
		Key:   []byte(event.Subject),
		Value: payload,
		Time:  time.Unix(event.At, 0).UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	})
}

// Close flushes pending messages.
func (k *KafkaEmitter) Close() error {
	return k.writer.Close()
}
