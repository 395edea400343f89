package domain

import "testing"

func TestCanTransition(t *testing.T) {
	statuses := []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
	allowed := map[[2]OrderStatus]bool{
		{OrderStatusPending, OrderStatusProcessing}:   true,
		{OrderStatusPending, OrderStatusCancelled}:    true,
		{OrderStatusProcessing, OrderStatusDelivered}: true,
		{OrderStatusProcessing, OrderStatusCancelled}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]OrderStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransitionUnknownStatus(t *testing.T) {
	if CanTransition("shipped", OrderStatusDelivered) {
		t.Fatal("unknown source status must not transition")
	}
	if CanTransition(OrderStatusPending, "shipped") {
		t.Fatal("unknown target status must not be reachable")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		valid    bool
		terminal bool
	}{
		{OrderStatusPending, true, false},
		{OrderStatusProcessing, true, false},
		{OrderStatusDelivered, true, true},
		{OrderStatusCancelled, true, true},
		{OrderStatus("refunded"), false, false},
	}

	for _, tc := range tests {
		if got := tc.status.Valid(); got != tc.valid {
			t.Errorf("%s.Valid() = %v, want %v", tc.status, got, tc.valid)
		}
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := AllowedTransitions(OrderStatusPending)
	next[0] = OrderStatusDelivered

	if !CanTransition(OrderStatusPending, OrderStatusProcessing) {
		t.Fatal("mutating the returned slice must not change the transition table")
	}
}
