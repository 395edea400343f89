package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const integrationDSNEnv = "QRPRO_POSTGRES_TEST_DSN"

// openPostgresStoreForIntegrationTest открывает базу, накатывает миграции и очищает таблицы.
func openPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	truncateAllTablesForIntegrationTest(t, store)
	return store
}

func openRawPostgresStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv(integrationDSNEnv))
	if dsn == "" {
		t.Skipf("%s is not set, skipping postgres integration test", integrationDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func truncateAllTablesForIntegrationTest(t *testing.T, store *Store) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := store.DB().ExecContext(ctx, `
		TRUNCATE TABLE
			idempotency_keys,
			outbox_messages,
			timeline_events,
			order_items,
			orders
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err, "truncate integration tables")
}
