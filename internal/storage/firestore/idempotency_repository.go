package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

const (
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyAttempts = 5
	defaultCleanupLimit        = 100
)

type idempotencyDoc struct {
	RequestHash  string    `firestore:"request_hash"`
	ResponseBody []byte    `firestore:"response_body"`
	HTTPStatus   int64     `firestore:"http_status"`
	Status       string    `firestore:"status"`
	TTLAt        time.Time `firestore:"ttl_at"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

func (d idempotencyDoc) record(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:          key,
		RequestHash:  d.RequestHash,
		ResponseBody: append([]byte(nil), d.ResponseBody...),
		HTTPStatus:   int(d.HTTPStatus),
		Status:       domain.IdempotencyStatus(d.Status),
		TTLAt:        d.TTLAt.UTC(),
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

type idempotencyRepository struct {
	provider *Provider
	now      func() time.Time
}

// NewIdempotencyRepository создаёт Firestore-реализацию IdempotencyRepository.
func NewIdempotencyRepository(provider *Provider) domain.IdempotencyRepository {
	return &idempotencyRepository{
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, requestHash = strings.TrimSpace(key), strings.TrimSpace(requestHash)
	switch {
	case key == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	case requestHash == "":
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(defaultIdempotencyTTL)
	}

	ref := client.Collection(collectionIdempotency).Doc(key)
	var result domain.IdempotencyRecord
	err = client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing idempotencyDoc
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			current := existing.record(key)
			if err := current.ClaimError(requestHash, now); err != nil {
				result = current
				return err
			}
		case !isNotFound(err):
			return err
		}

		doc := idempotencyDoc{
			RequestHash: requestHash,
			Status:      string(domain.IdempotencyStatusProcessing),
			TTLAt:       ttlAt.UTC(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		result = doc.record(key)
		return tx.Set(ref, doc)
	}, firestore.MaxAttempts(defaultIdempotencyAttempts))
	if err != nil {
		return result, translate("create idempotency record", err, nil)
	}
	return result, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	snap, err := client.Collection(collectionIdempotency).Doc(key).Get(ctx)
	if err != nil {
		return domain.IdempotencyRecord{}, translate("get idempotency record", err, domain.ErrIdempotencyKeyNotFound)
	}
	var doc idempotencyDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.IdempotencyRecord{}, translate("decode idempotency record", err, nil)
	}
	record := doc.record(key)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", doc.Status, key)
	}
	return record, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.finish(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет до limit просроченных записей; при limit <= 0 берётся пачка по умолчанию.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if before.IsZero() {
		before = r.now()
	}
	if limit <= 0 {
		limit = defaultCleanupLimit
	}

	snaps, err := client.Collection(collectionIdempotency).
		Where("ttl_at", "<=", before.UTC()).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, translate("list expired idempotency records", err, nil)
	}

	deleted := 0
	for _, snap := range snaps {
		if _, err := snap.Ref.Delete(ctx); err != nil {
			return deleted, translate("delete idempotency record", err, nil)
		}
		deleted++
	}
	return deleted, nil
}

func (r *idempotencyRepository) finish(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = client.Collection(collectionIdempotency).Doc(key).Update(ctx, []firestore.Update{
		{Path: "response_body", Value: body},
		{Path: "http_status", Value: int64(httpStatus)},
		{Path: "status", Value: string(status)},
		{Path: "updated_at", Value: r.now()},
	})
	return translate("finish idempotency record", err, domain.ErrIdempotencyKeyNotFound)
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
