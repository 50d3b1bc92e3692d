package repository

import (
	"context"

	"SignalDesk/internal/domain/models"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
)

// KafkaEventPublisher writes domain events to one topic keyed by Event.Key.
type KafkaEventPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaEventPublisher(producer *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, ev models.Event) error {
	return p.producer.PublishJSON(ctx, p.topic, ev.Key, ev)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// LogEventPublisher records events in the log when Kafka is disabled.
type LogEventPublisher struct {
	l *applogger.Logger
}

func NewLogEventPublisher(l *applogger.Logger) *LogEventPublisher {
	return &LogEventPublisher{l: l}
}

func (p *LogEventPublisher) Publish(_ context.Context, ev models.Event) error {
	p.l.Info("event",
		applogger.String("id", ev.ID),
		applogger.String("type", string(ev.Type)),
		applogger.String("key", ev.Key),
		applogger.Any("payload", ev.Payload),
	)
	return nil
}

func (p *LogEventPublisher) Close() error { return nil }
