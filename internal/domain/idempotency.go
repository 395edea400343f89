package domain

import (
	"strings"
	"time"
)

// IdempotencyStatus — стадия обработки запроса с Idempotency-Key.
type IdempotencyStatus string

const (
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — ответ сохранён и отдаётся при повторе.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — запрос завершился ошибкой, ключ можно занять повторно тем же запросом.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord — сохранённый результат запроса по ключу.
type IdempotencyRecord struct {
	// Key уже привязан к актору, см. IdempotencyScope.
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired сообщает, что запись больше не защищает ключ.
func (r IdempotencyRecord) Expired(now time.Time) bool {
	return !r.TTLAt.After(now)
}

// ClaimError решает, можно ли занять ключ, на котором уже лежит r.
// nil: запись просрочена или это неудачная попытка того же запроса.
func (r IdempotencyRecord) ClaimError(requestHash string, now time.Time) error {
	switch {
	case r.Expired(now):
		return nil
	case r.RequestHash != requestHash:
		return ErrIdempotencyHashMismatch
	case r.Status == IdempotencyStatusFailed:
		return nil
	default:
		return ErrIdempotencyKeyAlreadyExists
	}
}

// IdempotencyScope привязывает клиентский ключ к актору, чтобы одинаковые ключи
// разных пользователей не пересекались.
func IdempotencyScope(actorID, key string) string {
	return strings.TrimSpace(actorID) + ":" + strings.TrimSpace(key)
}
