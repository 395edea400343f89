package notification

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// Mailer — внешний провайдер транзакционных писем.
type Mailer interface {
	// Send возвращает *DeliveryError, если письмо не принято провайдером.
	Send(ctx context.Context, template, recipient string, variables map[string]string) error
}

// DeliveryError — письмо не доставлено. errors.Is(err, domain.ErrDelivery) == true.
type DeliveryError struct {
	Provider  string
	Template  string
	Recipient string
	// Temporary — повтор имеет смысл (таймаут, 5xx, 429).
	Temporary bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: deliver %s to %s: %v", e.Provider, e.Template, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool {
	return target == domain.ErrDelivery
}

// MailerFunc позволяет использовать функцию как Mailer.
type MailerFunc func(ctx context.Context, template, recipient string, variables map[string]string) error

func (f MailerFunc) Send(ctx context.Context, template, recipient string, variables map[string]string) error {
	return f(ctx, template, recipient, variables)
}
