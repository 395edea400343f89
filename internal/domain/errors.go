package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation — общая ошибка некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden — у актора нет прав на запрошенную операцию.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated — запрос пришёл без подтверждённой личности.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidTransition — переход статуса отсутствует в таблице допустимых.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDelivery — транзакционное письмо не доставлено.
	ErrDelivery = errors.New("notification delivery failed")
	// ErrPersistence — хранилище недоступно или отклонило запись.
	ErrPersistence = errors.New("persistence failure")

	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка смешения валют в одном заказе.
	ErrCurrencyMismatch = errors.New("items must share a single currency")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("total_amount must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы позиции и цены * количество.
	ErrItemTotalMismatch = errors.New("item total does not match unit price * quantity")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order total does not match items sum")
	// Ошибка неизвестного статуса заказа.
	ErrStatusUnknown = errors.New("unknown order status")
	// Ошибка неизвестного способа оплаты.
	ErrPaymentMethodInvalid = errors.New("unsupported payment method")
	// Ошибка неизвестного статуса оплаты.
	ErrPaymentStatusInvalid = errors.New("unsupported payment status")

	// ErrProductNotFound — товара нет в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound — записи по ключу нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// ValidationError перечисляет поля, не прошедшие проверку.
// errors.Is(err, ErrValidation) возвращает true.
type ValidationError struct {
	Fields []string
}

// NewValidationError создаёт ошибку валидации по списку полей.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: append([]string(nil), fields...)}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return fmt.Sprintf("%s: %s", ErrValidation.Error(), strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add дописывает поле в список.
func (e *ValidationError) Add(field string) {
	e.Fields = append(e.Fields, field)
}

// OrNil возвращает nil, если замечаний нет.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// ErrorCode возвращает машинный код категории ошибки для API и метрик.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrIdempotencyKeyRequired):
		return "validation"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrProductNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrOrderVersionConflict), IsIdempotencyConflict(err):
		return "conflict"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
