package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// translate переводит gRPC-коды Firestore в доменные ошибки.
// notFound подставляется для codes.NotFound; nil означает ErrPersistence.
func translate(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// Доменные ошибки из тела транзакции уже готовы.
	if isDomainError(err) {
		return err
	}

	switch status.Code(err) {
	case codes.NotFound:
		if notFound != nil {
			return notFound
		}
	case codes.AlreadyExists, codes.Aborted, codes.FailedPrecondition:
		return fmt.Errorf("%s: %w: %w", op, domain.ErrOrderVersionConflict, err)
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func isDomainError(err error) bool {
	for _, target := range []error{
		domain.ErrOrderNotFound,
		domain.ErrOrderVersionConflict,
		domain.ErrOutboxPublish,
		domain.ErrIdempotencyKeyNotFound,
		domain.ErrIdempotencyKeyAlreadyExists,
		domain.ErrIdempotencyHashMismatch,
		domain.ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
