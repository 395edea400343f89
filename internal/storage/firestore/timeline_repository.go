package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

type timelineDoc struct {
	Type       string    `firestore:"type"`
	ActorID    string    `firestore:"actor_id"`
	FromStatus string    `firestore:"from_status"`
	ToStatus   string    `firestore:"to_status"`
	Reason     string    `firestore:"reason"`
	Occurred   time.Time `firestore:"occurred"`
}

type timelineRepository struct {
	provider *Provider
}

// NewTimelineRepository хранит события в подколлекции orders/{id}/timeline.
func NewTimelineRepository(provider *Provider) domain.TimelineRepository {
	return &timelineRepository{provider: provider}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	_, err = timelineCollection(client, event.OrderID).NewDoc().Create(ctx, timelineDoc{
		Type:       event.Type,
		ActorID:    event.ActorID,
		FromStatus: string(event.FromStatus),
		ToStatus:   string(event.ToStatus),
		Reason:     event.Reason,
		Occurred:   event.Occurred.UTC(),
	})
	return translate("append timeline event", err, nil)
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snaps, err := timelineCollection(client, orderID).OrderBy("occurred", firestore.Asc).Documents(ctx).GetAll()
	if err != nil {
		return nil, translate("list timeline events", err, nil)
	}

	events := make([]domain.TimelineEvent, 0, len(snaps))
	for _, snap := range snaps {
		var doc timelineDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, translate("decode timeline event", err, nil)
		}
		events = append(events, domain.TimelineEvent{
			OrderID:    orderID,
			Type:       doc.Type,
			ActorID:    doc.ActorID,
			FromStatus: domain.OrderStatus(doc.FromStatus),
			ToStatus:   domain.OrderStatus(doc.ToStatus),
			Reason:     doc.Reason,
			Occurred:   doc.Occurred.UTC(),
		})
	}
	return events, nil
}

func timelineCollection(client *firestore.Client, orderID string) *firestore.CollectionRef {
	return client.Collection(collectionOrders).Doc(orderID).Collection(collectionTimeline)
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
