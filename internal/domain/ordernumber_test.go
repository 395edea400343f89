package domain

import (
	"testing"
	"time"
)

func TestFormatOrderNumber(t *testing.T) {
	createdAt := time.Date(2024, time.December, 15, 23, 30, 0, 0, time.UTC)

	if got := FormatOrderNumber(createdAt, 42); got != "QR241215042" {
		t.Fatalf("unexpected order number %q", got)
	}
	if got := FormatOrderNumber(createdAt, 7); got != "QR241215007" {
		t.Fatalf("suffix must be zero padded, got %q", got)
	}
}

func TestFormatOrderNumberUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	createdAt := time.Date(2025, time.January, 1, 1, 0, 0, 0, loc)

	if got := FormatOrderNumber(createdAt, 1); got != "QR241231001" {
		t.Fatalf("expected UTC date in number, got %q", got)
	}
}

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Now()
	for i := 0; i < 50; i++ {
		number := NewOrderNumber(now)
		if !ValidOrderNumber(number) {
			t.Fatalf("generated number %q has unexpected format", number)
		}
	}
}

func TestValidOrderNumber(t *testing.T) {
	cases := map[string]bool{
		"QR241215042":  true,
		"QR24121504":   false,
		"XX241215042":  false,
		"QR2412150421": false,
		"":             false,
	}
	for number, want := range cases {
		if got := ValidOrderNumber(number); got != want {
			t.Errorf("ValidOrderNumber(%q) = %v, want %v", number, got, want)
		}
	}
}
