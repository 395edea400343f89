package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIdempotencyRecordClaimError(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	live := now.Add(time.Hour)

	tests := []struct {
		name    string
		record  IdempotencyRecord
		hash    string
		wantErr error
	}{
		{name: "expired record is reclaimed", record: IdempotencyRecord{RequestHash: "a", Status: IdempotencyStatusDone, TTLAt: now}, hash: "b"},
		{name: "different request", record: IdempotencyRecord{RequestHash: "a", Status: IdempotencyStatusFailed, TTLAt: live}, hash: "b", wantErr: ErrIdempotencyHashMismatch},
		{name: "failed same request", record: IdempotencyRecord{RequestHash: "a", Status: IdempotencyStatusFailed, TTLAt: live}, hash: "a"},
		{name: "done same request", record: IdempotencyRecord{RequestHash: "a", Status: IdempotencyStatusDone, TTLAt: live}, hash: "a", wantErr: ErrIdempotencyKeyAlreadyExists},
		{name: "processing same request", record: IdempotencyRecord{RequestHash: "a", Status: IdempotencyStatusProcessing, TTLAt: live}, hash: "a", wantErr: ErrIdempotencyKeyAlreadyExists},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.record.ClaimError(tc.hash, now)
			if !errors.Is(err, tc.wantErr) || (tc.wantErr == nil && err != nil) {
				t.Fatalf("ClaimError() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestIdempotencyScope(t *testing.T) {
	if got := IdempotencyScope(" user-1 ", " key "); got != "user-1:key" {
		t.Fatalf("unexpected scope: %q", got)
	}
	if IdempotencyScope("user-1", "k") == IdempotencyScope("user-2", "k") {
		t.Fatalf("scopes of different actors must differ")
	}
}
