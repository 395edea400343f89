package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

func TestIdempotencyRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(2 * time.Hour).Round(time.Second)

	created, err := repo.CreateProcessing(ctx, "idem-key-1", "hash-1", ttl)
	if err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if created.Status != domain.IdempotencyStatusProcessing {
		t.Fatalf("expected status %s, got %s", domain.IdempotencyStatusProcessing, created.Status)
	}

	got, err := repo.Get(ctx, "idem-key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RequestHash != "hash-1" || !got.TTLAt.Equal(ttl) {
		t.Fatalf("unexpected record: %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_Validation(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	if _, err := repo.CreateProcessing(ctx, " ", "hash", time.Time{}); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "key", "", time.Time{}); !errors.Is(err, domain.ErrIdempotencyRequestHashRequired) {
		t.Fatalf("expected ErrIdempotencyRequestHashRequired, got %v", err)
	}
	if err := repo.MarkDone(ctx, "missing", nil, 200); !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		t.Fatalf("expected ErrIdempotencyKeyNotFound, got %v", err)
	}
}

func TestIdempotencyRepository_ConflictAndHashMismatch(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing(ctx, "idem-key-2", "hash-a", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "idem-key-2", "hash-a", ttl); !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if _, err := repo.CreateProcessing(ctx, "idem-key-2", "hash-b", ttl); !errors.Is(err, domain.ErrIdempotencyHashMismatch) {
		t.Fatalf("expected ErrIdempotencyHashMismatch, got %v", err)
	}
}

func TestIdempotencyRepository_FailedKeyCanBeRetried(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	if _, err := repo.CreateProcessing(ctx, "key", "hash", ttl); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "key", []byte(`{"error":"x"}`), 503); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	retried, err := repo.CreateProcessing(ctx, "key", "hash", ttl)
	if err != nil {
		t.Fatalf("expected failed key to be retriable, got %v", err)
	}
	if retried.Status != domain.IdempotencyStatusProcessing || len(retried.ResponseBody) != 0 {
		t.Fatalf("unexpected retried record: %+v", retried)
	}
}

func TestIdempotencyRepository_DoneStoresResponse(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()

	if _, err := repo.CreateProcessing(ctx, "key", "hash", time.Time{}); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}
	body := []byte(`{"id":"order-1"}`)
	if err := repo.MarkDone(ctx, "key", body, 201); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	body[0] = 'X'

	existing, err := repo.CreateProcessing(ctx, "key", "hash", time.Time{})
	if !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
		t.Fatalf("expected ErrIdempotencyKeyAlreadyExists, got %v", err)
	}
	if existing.Status != domain.IdempotencyStatusDone || existing.HTTPStatus != 201 || string(existing.ResponseBody) != `{"id":"order-1"}` {
		t.Fatalf("unexpected stored response: %+v", existing)
	}
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository()
	now := time.Now().UTC()

	for i, key := range []string{"old-1", "old-2", "old-3"} {
		if _, err := repo.CreateProcessing(ctx, key, "hash", now.Add(time.Duration(i+1)*time.Second)); err != nil {
			t.Fatalf("CreateProcessing failed: %v", err)
		}
	}
	if _, err := repo.CreateProcessing(ctx, "fresh", "hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("CreateProcessing failed: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, now.Add(time.Minute), 2)
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 deleted with limit, got %d (%v)", deleted, err)
	}
	deleted, _ = repo.DeleteExpired(ctx, now.Add(time.Minute), 0)
	if deleted != 1 || repo.Len() != 1 {
		t.Fatalf("expected last expired record removed, deleted=%d len=%d", deleted, repo.Len())
	}
}
