package kafka

import "github.com/IBM/sarama"

// TopicNotificationDLQ — письма, которые воркер outbox не смог доставить.
const TopicNotificationDLQ = "qrpro.notifications.dlq"

// Заголовки сообщений DLQ.
const (
	HeaderOutboxID      = "x-outbox-id"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderFailedAt      = "x-failed-at"
)

// Header возвращает значение заголовка сообщения или пустую строку.
func Header(msg *sarama.ConsumerMessage, key string) string {
	if msg == nil {
		return ""
	}
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
