package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Сбрасываем схему целиком.
	require.NoError(t, store.MigrateDown(ctx, 100))

	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.Zero(t, state.Version)
	require.Zero(t, state.Applied)
	require.Len(t, state.Pending, 4)

	require.NoError(t, store.MigrateUp(ctx, 2))
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, state.Version)
	require.Equal(t, []string{"0003_notification_outbox", "0004_idempotency_keys"}, state.Pending)

	require.NoError(t, store.MigrateUp(ctx, 0))
	require.NoError(t, store.MigrateUp(ctx, 0))
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 4, state.Version)
	require.Equal(t, 4, state.Applied)
	require.Empty(t, state.Pending)

	require.NoError(t, store.MigrateDown(ctx, 0))
	state, err = store.MigrationStatus(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, state.Version)

	// Возвращаем схему для остальных тестов пакета.
	require.NoError(t, store.MigrateUp(ctx, 0))
}

func TestMigrator_NilStore(t *testing.T) {
	var store *Store
	ctx := context.Background()

	require.Error(t, store.MigrateUp(ctx, 0))
	require.Error(t, store.MigrateDown(ctx, 1))
	_, err := store.MigrationStatus(ctx)
	require.Error(t, err)
}
