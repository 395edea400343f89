package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

func ok(context.Context) error { return nil }

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", ok))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.0.0", response.Version)
	require.Len(t, response.Checks, 1)
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", func(context.Context) error {
		return errors.New("service unavailable")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "service unavailable", response.Checks["storage"].Message)
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewSimpleChecker("storage", ok))

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ready", w.Body.String())

	handler.RegisterChecker("broken", NewSimpleChecker("broken", func(context.Context) error {
		return errors.New("not ready")
	}))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, "not ready", w.Body.String())
}

func TestSimpleChecker_RespectsContext(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewSimpleChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	overall, checks := handler.Run(context.Background())
	require.Equal(t, StatusUnhealthy, overall)
	require.Contains(t, checks["slow"].Message, "deadline")
}

type stubOutbox struct {
	domain.OutboxRepository
	stats domain.OutboxStats
	err   error
}

func (s stubOutbox) Stats(context.Context) (domain.OutboxStats, error) { return s.stats, s.err }

func TestOutboxChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		repo stubOutbox
		want Status
	}{
		{name: "empty", repo: stubOutbox{}, want: StatusHealthy},
		{name: "fresh backlog", repo: stubOutbox{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-time.Minute)}}, want: StatusHealthy},
		{name: "stale backlog", repo: stubOutbox{stats: domain.OutboxStats{PendingCount: 3, OldestPendingAt: now.Add(-time.Hour)}}, want: StatusDegraded},
		{name: "storage error", repo: stubOutbox{err: errors.New("down")}, want: StatusUnhealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := NewOutboxChecker(tc.repo, 10*time.Minute)
			checker.now = func() time.Time { return now }
			require.Equal(t, tc.want, checker.Check(context.Background()).Status)
		})
	}

	handler := NewHandler("dev")
	stale := NewOutboxChecker(stubOutbox{stats: domain.OutboxStats{PendingCount: 1, OldestPendingAt: now.Add(-time.Hour)}}, time.Minute)
	stale.now = func() time.Time { return now }
	handler.RegisterChecker("outbox", stale)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code, "degraded keeps 200")
}
