package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

func TestTimelineRepository_PostgresAppendAndList(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	events := []domain.TimelineEvent{
		{OrderID: "order-1", Type: domain.TimelineOrderCreated, ActorID: "user-1", ToStatus: domain.OrderStatusPending, Occurred: now},
		{
			OrderID:    "order-1",
			Type:       domain.TimelineOrderCancelled,
			ActorID:    "user-1",
			FromStatus: domain.OrderStatusPending,
			ToStatus:   domain.OrderStatusCancelled,
			Reason:     "changed my mind",
			Occurred:   now.Add(time.Second),
		},
		{OrderID: "order-2", Type: domain.TimelineOrderCreated, ActorID: "user-2", Occurred: now},
	}
	for _, e := range events {
		require.NoError(t, repo.Append(ctx, e))
	}

	got, err := repo.List(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, domain.TimelineOrderCreated, got[0].Type)
	require.Equal(t, events[1].Reason, got[1].Reason)
	require.Equal(t, domain.OrderStatusPending, got[1].FromStatus)
	require.Equal(t, domain.OrderStatusCancelled, got[1].ToStatus)
	require.True(t, got[1].Occurred.Equal(events[1].Occurred))

	empty, err := repo.List(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestTimelineRepository_PostgresDefaultsOccurred(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewTimelineRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, domain.TimelineEvent{OrderID: "order-3", Type: domain.TimelineOrderEdited}))

	got, err := repo.List(ctx, "order-3")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].Occurred.IsZero())
}
