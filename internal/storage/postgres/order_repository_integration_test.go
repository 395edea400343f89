package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

func sampleOrder(id, userID string, createdAt time.Time) domain.Order {
	order := domain.Order{
		ID:          id,
		OrderNumber: "QR-" + id,
		UserID:      userID,
		Currency:    "XOF",
		Status:      domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ProductID: "pro-card", ProductName: "Carte PRO", Quantity: 1, UnitPrice: 15000},
			{ProductID: "stickers", ProductName: "Stickers QR", Quantity: 3, UnitPrice: 2500},
		},
		CustomerInfo: domain.CustomerInfo{
			FirstName: "Awa",
			LastName:  "Diop",
			Email:     "awa@example.com",
			Phone:     "+221770000000",
			Address:   "Rue 10",
			City:      "Dakar",
		},
		PaymentInfo: domain.PaymentInfo{
			Method:      domain.PaymentMethodWaveDirect,
			Provider:    "wave",
			PhoneNumber: "+221770000000",
			Status:      domain.PaymentStatusPending,
		},
		Version:   1,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	order.Recalculate()
	return order
}

func TestOrderRepository_PostgresCreateGetListAndSave(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	first := sampleOrder("order-1", "user-1", now.Add(-2*time.Minute))
	second := sampleOrder("order-2", "user-1", now.Add(-time.Minute))
	foreign := sampleOrder("order-3", "user-2", now)

	for _, o := range []domain.Order{first, second, foreign} {
		require.NoError(t, repo.Create(ctx, o))
	}

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, first.UserID, got.UserID)
	require.Equal(t, first.CustomerInfo, got.CustomerInfo)
	require.Equal(t, first.PaymentInfo, got.PaymentInfo)
	require.Equal(t, first.Items, got.Items)
	require.EqualValues(t, 22500, got.TotalAmount)
	require.True(t, got.CreatedAt.Equal(first.CreatedAt))

	mine, err := repo.List(ctx, domain.OrderFilter{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, second.ID, mine[0].ID, "newest first")
	require.Len(t, mine[1].Items, 2)

	limited, err := repo.List(ctx, domain.OrderFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	require.Equal(t, foreign.ID, limited[0].ID)

	got.Status = domain.OrderStatusProcessing
	got.Items = got.Items[:1]
	got.Recalculate()
	got.Touch(now)
	require.NoError(t, repo.Save(ctx, got))

	updated, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, updated.Status)
	require.Len(t, updated.Items, 1)
	require.EqualValues(t, 15000, updated.TotalAmount)
	require.Equal(t, got.Version+1, updated.Version)

	processing, err := repo.List(ctx, domain.OrderFilter{Status: domain.OrderStatusProcessing})
	require.NoError(t, err)
	require.Len(t, processing, 1)
	require.Equal(t, first.ID, processing[0].ID)
}

func TestOrderRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	ctx := context.Background()

	base := sampleOrder("order-errors", "user-2", time.Now().UTC().Round(time.Microsecond))

	_, err := repo.Get(ctx, "missing-order")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.ErrorIs(t, repo.Save(ctx, base), domain.ErrOrderNotFound)

	require.NoError(t, repo.Create(ctx, base))
	require.ErrorIs(t, repo.Create(ctx, base), domain.ErrOrderVersionConflict)

	stale := base
	stale.Version = 7
	require.ErrorIs(t, repo.Save(ctx, stale), domain.ErrOrderVersionConflict)
}
