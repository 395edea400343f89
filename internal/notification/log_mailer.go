package notification

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogMailer пишет письма в лог. Для локальной разработки.
type LogMailer struct {
	logger *log.Entry
}

// NewLogMailer создаёт LogMailer.
func NewLogMailer(logger *log.Entry) *LogMailer {
	if logger == nil {
		logger = log.WithField("component", "log-mailer")
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(_ context.Context, template, recipient string, variables map[string]string) error {
	if !KnownTemplate(template) {
		return &DeliveryError{Provider: "log", Template: template, Recipient: recipient, Err: ErrUnknownTemplate}
	}
	m.logger.WithFields(log.Fields{
		"template":     template,
		"recipient":    recipient,
		"order_number": variables["order_number"],
		"status":       variables["status"],
	}).Info("email sent (log mailer)")
	return nil
}
