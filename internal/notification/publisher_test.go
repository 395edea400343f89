package notification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/service/outbox"
)

func jobMessage(t *testing.T, job EmailJob) domain.OutboxMessage {
	t.Helper()
	payload, err := job.Encode()
	require.NoError(t, err)
	return domain.OutboxMessage{ID: "msg-1", EventType: job.Template, Payload: payload}
}

func TestEmailPublisher_Publish(t *testing.T) {
	t.Parallel()

	var got struct {
		template, recipient string
		vars                map[string]string
	}
	mailer := MailerFunc(func(_ context.Context, template, recipient string, vars map[string]string) error {
		got.template, got.recipient, got.vars = template, recipient, vars
		return nil
	})

	msg := jobMessage(t, EmailJob{
		Template:  TemplateOrderConfirmation,
		Recipient: "awa@example.com",
		Variables: map[string]string{"order_number": "QR241215042"},
	})
	require.NoError(t, NewEmailPublisher(mailer).Publish(context.Background(), msg))
	require.Equal(t, TemplateOrderConfirmation, got.template)
	require.Equal(t, "awa@example.com", got.recipient)
	require.Equal(t, "QR241215042", got.vars["order_number"])
}

func TestEmailPublisher_ErrorClassification(t *testing.T) {
	t.Parallel()

	valid := EmailJob{Template: TemplateStatusUpdate, Recipient: "awa@example.com"}

	cases := []struct {
		name      string
		msg       func(t *testing.T) domain.OutboxMessage
		mailerErr error
		permanent bool
	}{
		{
			name:      "broken payload",
			msg:       func(*testing.T) domain.OutboxMessage { return domain.OutboxMessage{Payload: []byte("{")} },
			permanent: true,
		},
		{
			name: "unknown template",
			msg: func(t *testing.T) domain.OutboxMessage {
				return jobMessage(t, EmailJob{Template: "welcome", Recipient: "awa@example.com"})
			},
			permanent: true,
		},
		{
			name:      "temporary delivery error",
			msg:       func(t *testing.T) domain.OutboxMessage { return jobMessage(t, valid) },
			mailerErr: &DeliveryError{Provider: "emailjs", Temporary: true, Err: errors.New("status 503")},
			permanent: false,
		},
		{
			name:      "rejected by provider",
			msg:       func(t *testing.T) domain.OutboxMessage { return jobMessage(t, valid) },
			mailerErr: &DeliveryError{Provider: "emailjs", Err: errors.New("status 400")},
			permanent: true,
		},
		{
			name:      "plain network error",
			msg:       func(t *testing.T) domain.OutboxMessage { return jobMessage(t, valid) },
			mailerErr: errors.New("connection reset"),
			permanent: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mailer := MailerFunc(func(context.Context, string, string, map[string]string) error {
				return tc.mailerErr
			})
			err := NewEmailPublisher(mailer).Publish(context.Background(), tc.msg(t))
			require.Error(t, err)
			require.Equal(t, tc.permanent, outbox.IsPermanent(err))
		})
	}
}

func TestDeliveryErrorMatchesSentinel(t *testing.T) {
	t.Parallel()

	err := error(&DeliveryError{Provider: "smtp", Template: TemplateStatusUpdate, Recipient: "a@b.c", Err: errors.New("boom")})
	require.ErrorIs(t, err, domain.ErrDelivery)
	require.Contains(t, err.Error(), "smtp: deliver status_update to a@b.c")
}
