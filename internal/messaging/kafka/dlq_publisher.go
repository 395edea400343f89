package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// DLQPublisher отправляет недоставленные письма в Kafka-топик DLQ.
// Payload сообщения уже содержит сериализованный outbox.DeadLetter.
type DLQPublisher struct {
	producer *Producer
	topic    string
}

// NewDLQPublisher создаёт publisher для DLQ уведомлений.
func NewDLQPublisher(producer *Producer, topic string) *DLQPublisher {
	if topic == "" {
		topic = TopicNotificationDLQ
	}
	return &DLQPublisher{producer: producer, topic: topic}
}

// Publish реализует domain.OutboxPublisher.
func (p *DLQPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka dlq publisher is not initialized")
	}

	key := msg.AggregateID
	if key == "" {
		key = msg.ID
	}
	failedAt := msg.CreatedAt
	if failedAt.IsZero() {
		failedAt = time.Now().UTC()
	}

	return p.producer.Send(ctx, p.topic, key, msg.Payload, map[string]string{
		HeaderOutboxID:      msg.ID,
		HeaderEventType:     msg.EventType,
		HeaderAggregateType: msg.AggregateType,
		HeaderFailedAt:      failedAt.Format(time.RFC3339),
	})
}

var _ domain.OutboxPublisher = (*DLQPublisher)(nil)
