package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
	"github.com/vladislavdragonenkov/qrpro/internal/service/outbox"
	"github.com/vladislavdragonenkov/qrpro/internal/storage/memory"
)

func TestOpenCircuitKeepsBacklogPending(t *testing.T) {
	t.Parallel()

	providerCalls := 0
	provider := MailerFunc(func(context.Context, string, string, map[string]string) error {
		providerCalls++
		return &DeliveryError{Provider: "emailjs", Temporary: true, Err: errors.New("status 503")}
	})
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	breaker := NewBreakerMailer(provider, 5, time.Minute, nil)
	breaker.now = func() time.Time { return now }

	repo := memory.NewOutboxRepository()
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		msg := jobMessage(t, EmailJob{Template: TemplateStatusUpdate, Recipient: "awa@example.com"})
		msg.ID = fmt.Sprintf("msg-%02d", i)
		msg.CreatedAt = now.Add(time.Duration(i) * time.Second)
		_, err := repo.Enqueue(ctx, msg)
		require.NoError(t, err)
	}

	dlq := &recordingPublisher{}
	worker := outbox.NewWorker(repo, NewEmailPublisher(breaker),
		outbox.WithDLQPublisher(dlq),
		outbox.WithRetryBaseDelay(0),
		outbox.WithMaxAttempts(5),
	)

	require.Zero(t, worker.ProcessOnce(ctx))
	require.Equal(t, 5, providerCalls)
	require.Equal(t, CircuitOpen, breaker.State())

	// Первое письмо исчерпало попытки, остальные ждут закрытия цепи.
	status, _, ok := repo.Status("msg-00")
	require.True(t, ok)
	require.Equal(t, "failed", status)
	require.Len(t, repo.AllPending(), 9)
	require.Equal(t, 1, dlq.count)

	// Повторный цикл при разомкнутой цепи ничего не теряет.
	require.Zero(t, worker.ProcessOnce(ctx))
	require.Equal(t, 5, providerCalls)
	require.Len(t, repo.AllPending(), 9)
	require.Equal(t, 1, dlq.count)
}

func TestEmailPublisher_OpenCircuitIsDeferred(t *testing.T) {
	t.Parallel()

	breaker := NewBreakerMailer(MailerFunc(func(context.Context, string, string, map[string]string) error {
		return errors.New("connection reset")
	}), 1, time.Hour, nil)
	publisher := NewEmailPublisher(breaker)
	msg := jobMessage(t, EmailJob{Template: TemplateStatusUpdate, Recipient: "awa@example.com"})

	err := publisher.Publish(context.Background(), msg)
	require.Error(t, err)
	require.False(t, outbox.IsDeferred(err))

	err = publisher.Publish(context.Background(), msg)
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.True(t, outbox.IsDeferred(err))
	require.False(t, outbox.IsPermanent(err))
}

type recordingPublisher struct {
	count int
}

func (p *recordingPublisher) Publish(context.Context, domain.OutboxMessage) error {
	p.count++
	return nil
}
