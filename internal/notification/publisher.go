package notification

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/service/outbox"
)

// EmailPublisher доставляет outbox-сообщения через Mailer.
type EmailPublisher struct {
	mailer Mailer
}

// NewEmailPublisher создаёт publisher для outbox worker.
func NewEmailPublisher(mailer Mailer) *EmailPublisher {
	return &EmailPublisher{mailer: mailer}
}

// Publish разбирает EmailJob и отправляет письмо. Битое задание или постоянная
// ошибка провайдера помечаются как неповторяемые.
func (p *EmailPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	job, err := DecodeEmailJob(msg.Payload)
	if err != nil {
		return outbox.Permanent(err)
	}

	err = p.mailer.Send(ctx, job.Template, job.Recipient, job.Variables)
	if err == nil {
		return nil
	}

	// Разомкнутая цепь: провайдер не вызывался, письмо ждёт следующего цикла.
	if errors.Is(err, ErrCircuitOpen) {
		return outbox.Deferred(err)
	}
	var delivery *DeliveryError
	if errors.As(err, &delivery) && !delivery.Temporary {
		return outbox.Permanent(err)
	}
	if errors.Is(err, ErrUnknownTemplate) {
		return outbox.Permanent(err)
	}
	return err
}

var _ domain.OutboxPublisher = (*EmailPublisher)(nil)
