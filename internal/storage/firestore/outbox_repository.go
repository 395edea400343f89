package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	outboxStatusPending    = "pending"
	outboxStatusSent       = "sent"
	outboxStatusFailed     = "failed"
	defaultOutboxPullLimit = 100
	outboxStatsScanLimit   = 10000
)

type outboxDoc struct {
	AggregateType string    `firestore:"aggregate_type"`
	AggregateID   string    `firestore:"aggregate_id"`
	EventType     string    `firestore:"event_type"`
	Payload       []byte    `firestore:"payload"`
	Status        string    `firestore:"status"`
	AttemptCount  int64     `firestore:"attempt_count"`
	CreatedAt     time.Time `firestore:"created_at"`
	UpdatedAt     time.Time `firestore:"updated_at"`
}

type outboxRepository struct {
	provider *Provider
	now      func() time.Time
}

// NewOutboxRepository создаёт Firestore-реализацию очереди уведомлений.
func NewOutboxRepository(provider *Provider) domain.OutboxRepository {
	return &outboxRepository{
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OutboxMessage{}, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := r.now()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}

	_, err = client.Collection(collectionOutbox).Doc(msg.ID).Create(ctx, outboxDoc{
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       msg.Payload,
		Status:        outboxStatusPending,
		CreatedAt:     msg.CreatedAt.UTC(),
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.OutboxMessage{}, translate("enqueue outbox message", err, nil)
	}
	return msg, nil
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if limit <= 0 {
		limit = defaultOutboxPullLimit
	}

	snaps, err := pendingQuery(client).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, translate("pull pending outbox messages", err, nil)
	}

	result := make([]domain.OutboxMessage, 0, len(snaps))
	for _, snap := range snaps {
		var doc outboxDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, translate("decode outbox message", err, nil)
		}
		result = append(result, domain.OutboxMessage{
			ID:            snap.Ref.ID,
			AggregateType: doc.AggregateType,
			AggregateID:   doc.AggregateID,
			EventType:     doc.EventType,
			Payload:       doc.Payload,
			CreatedAt:     doc.CreatedAt.UTC(),
		})
	}
	return result, nil
}

// Stats считает backlog по проекции created_at; больше outboxStatsScanLimit не сканируем.
func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.OutboxStats{}, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snaps, err := pendingQuery(client).Select("created_at").Limit(outboxStatsScanLimit).Documents(ctx).GetAll()
	if err != nil {
		return domain.OutboxStats{}, translate("outbox stats", err, nil)
	}

	stats := domain.OutboxStats{PendingCount: len(snaps)}
	if len(snaps) > 0 {
		var doc outboxDoc
		if err := snaps[0].DataTo(&doc); err != nil {
			return domain.OutboxStats{}, translate("decode outbox message", err, nil)
		}
		stats.OldestPendingAt = doc.CreatedAt.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusSent)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string) error {
	return r.mark(ctx, id, outboxStatusFailed)
}

func (r *outboxRepository) mark(ctx context.Context, id, status string) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = client.Collection(collectionOutbox).Doc(id).Update(ctx, []firestore.Update{
		{Path: "status", Value: status},
		{Path: "attempt_count", Value: firestore.Increment(1)},
		{Path: "updated_at", Value: r.now()},
	})
	return translate("mark outbox message "+status, err, domain.ErrOutboxPublish)
}

func pendingQuery(client *firestore.Client) firestore.Query {
	return client.Collection(collectionOutbox).
		Where("status", "==", outboxStatusPending).
		OrderBy("created_at", firestore.Asc)
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
