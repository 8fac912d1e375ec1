package infra

import (
	"log/slog"

	"github.com/congo-pay/timelock/internal/events"
)

// NewEmitter logs every event and, when brokers are configured, also
// publishes it to Kafka. The returned close func releases the Kafka writer.
func NewEmitter(brokers []string, topic string, logger *slog.Logger) (events.Emitter, func() error, error) {
	logEmitter := events.NewLoggerEmitter(logger)
	if len(brokers) == 0 {
		return logEmitter, func() error { return nil }, nil
	}
	kafka, err := events.NewKafkaEmitter(brokers, topic)
	if err != nil {
		return nil, nil, err
	}
	return events.Multi{logEmitter, kafka}, kafka.Close, nil
}
