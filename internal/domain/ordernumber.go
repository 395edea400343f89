package domain

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

var orderNumberPattern = regexp.MustCompile(`^QR\d{9}$`)

// FormatOrderNumber собирает номер вида QR + YYMMDD + трёхзначный суффикс.
func FormatOrderNumber(createdAt time.Time, suffix int) string {
	return fmt.Sprintf("QR%s%03d", createdAt.UTC().Format("060102"), suffix%1000)
}

// NewOrderNumber генерирует номер со случайным суффиксом. Коллизии допустимы:
// уникальность заказа обеспечивает ID.
func NewOrderNumber(createdAt time.Time) string {
	return FormatOrderNumber(createdAt, rand.IntN(1000))
}

// ValidOrderNumber проверяет формат номера.
func ValidOrderNumber(number string) bool {
	return orderNumberPattern.MatchString(number)
}
