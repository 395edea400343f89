package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/qrpro/internal/health"
)

func testLogger() *log.Entry {
	logger, _ := test.NewNullLogger()
	return log.NewEntry(logger)
}

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.AuthMode = AuthModeHeader
	return cfg
}

func TestNewApplication_MemoryOrderFlowDeliversNotification(t *testing.T) {
	a, err := newApplication(context.Background(), memoryConfig(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.close()) })

	body, err := json.Marshal(map[string]any{
		"items": []map[string]any{{"productId": "nfc-card", "quantity": 1}},
		"customerInfo": map[string]any{
			"firstName": "Moussa",
			"lastName":  "Ndiaye",
			"email":     "moussa@example.com",
			"phone":     "+221780000000",
			"address":   "Plateau",
			"city":      "Dakar",
		},
		"paymentInfo": map[string]any{"method": "cash_on_delivery"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", bytes.NewReader(body))
	req.Header.Set(auth.HeaderUserID, "user-9")
	w := httptest.NewRecorder()
	a.api.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	stats, err := a.deps.outbox.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)

	require.Equal(t, 1, a.worker.ProcessOnce(context.Background()))

	stats, err = a.deps.outbox.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)

	status, checks := a.health.Run(context.Background())
	require.Equal(t, healthcheck.StatusHealthy, status)
	require.Contains(t, checks, "storage")
	require.Contains(t, checks, "outbox")
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.StorageDriver = "invalid-driver"

	_, err := newApplication(context.Background(), cfg, testLogger())
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestNewApplication_MissingCatalogFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.CatalogFile = t.TempDir() + "/missing.yaml"

	_, err := newApplication(context.Background(), cfg, testLogger())
	require.ErrorContains(t, err, "read catalog file")
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, memoryConfig())
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestShutdownHelpers(t *testing.T) {
	logger := testLogger()

	shutdownHTTP(nil, time.Second, logger)
	shutdownWorkers(nil, nil, time.Second, logger)
	closeKafkaProducer(nil, logger)

	called := false
	shutdownWorkers(func() { called = true }, nil, time.Second, logger)
	require.True(t, called)

	require.NoError(t, closeAll(nil, func() error { return nil }))
	require.Error(t, closeAll(func() error { return errors.New("boom") }))
}

func TestInitKafkaDLQ_DisabledWithoutBrokers(t *testing.T) {
	producer, dlq := initKafkaDLQ(memoryConfig(), testLogger())
	require.Nil(t, producer)
	require.Nil(t, dlq)
}
