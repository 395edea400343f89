package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, actor_id, from_status, to_status, reason, occurred)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		event.OrderID, event.Type, event.ActorID, string(event.FromStatus), string(event.ToStatus),
		event.Reason, event.Occurred,
	); err != nil {
		return persistErr("append timeline event", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, type, actor_id, from_status, to_status, reason, occurred
		FROM timeline_events
		WHERE order_id = $1
		ORDER BY occurred ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, persistErr("list timeline events", err)
	}
	defer rows.Close()

	events := make([]domain.TimelineEvent, 0)
	for rows.Next() {
		var (
			event    domain.TimelineEvent
			from, to string
		)
		if err := rows.Scan(&event.OrderID, &event.Type, &event.ActorID, &from, &to, &event.Reason, &event.Occurred); err != nil {
			return nil, persistErr("scan timeline event", err)
		}
		event.FromStatus = domain.OrderStatus(from)
		event.ToStatus = domain.OrderStatus(to)
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("iterate timeline events", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
