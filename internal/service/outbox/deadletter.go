package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// DeadLetter — уведомление, которое не удалось доставить.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

// Message упаковывает письмо в сообщение для DLQ-топика.
func (d DeadLetter) Message() (domain.OutboxMessage, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal dead letter: %w", err)
	}
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       payload,
		CreatedAt:     d.FailedAt,
	}, nil
}

// DecodeDeadLetter разбирает сообщение из DLQ.
func DecodeDeadLetter(data []byte) (DeadLetter, error) {
	var d DeadLetter
	if err := json.Unmarshal(data, &d); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if d.OutboxID == "" || d.EventType == "" || len(d.Payload) == 0 {
		return DeadLetter{}, errors.New("dead letter is missing outbox_id, event_type or payload")
	}
	return d, nil
}

// Requeue возвращает исходное сообщение для повторной постановки в outbox.
// Новый ID нужен, потому что исходная запись остаётся в статусе failed.
func (d DeadLetter) Requeue(newID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            newID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       append([]byte(nil), d.Payload...),
	}
}
