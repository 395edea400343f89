// Package notification формирует транзакционные письма о заказах и доставляет их через Mailer.
package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Шаблоны транзакционных писем.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateStatusUpdate      = "status_update"
)

// ErrUnknownTemplate — шаблон не поддерживается провайдером.
var ErrUnknownTemplate = errors.New("unknown email template")

// KnownTemplate проверяет имя шаблона.
func KnownTemplate(name string) bool {
	return name == TemplateOrderConfirmation || name == TemplateStatusUpdate
}

// EmailJob — полезная нагрузка outbox-сообщения.
type EmailJob struct {
	Template  string            `json:"template"`
	Recipient string            `json:"recipient"`
	Variables map[string]string `json:"variables"`
}

// Encode сериализует задание для outbox.
func (j EmailJob) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeEmailJob разбирает и проверяет задание.
func DecodeEmailJob(data []byte) (EmailJob, error) {
	var job EmailJob
	if err := json.Unmarshal(data, &job); err != nil {
		return EmailJob{}, fmt.Errorf("decode email job: %w", err)
	}
	if strings.TrimSpace(job.Recipient) == "" {
		return EmailJob{}, errors.New("email job has no recipient")
	}
	if !KnownTemplate(job.Template) {
		return EmailJob{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, job.Template)
	}
	return job, nil
}
