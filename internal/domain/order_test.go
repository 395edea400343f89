package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/qrpro/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:          "order-1",
		OrderNumber: "QR241215042",
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		Currency:    "FCFA",
		TotalAmount: 40000,
		Items: []domain.OrderItem{
			{
				ProductID:   "nfc-card",
				ProductName: "Carte NFC",
				Quantity:    2,
				UnitPrice:   20000,
				TotalPrice:  40000,
			},
		},
		PaymentInfo: domain.PaymentInfo{
			Method: domain.PaymentMethodCashOnDelivery,
			Status: domain.PaymentStatusPending,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no user",
			mut:  func(o *domain.Order) { o.UserID = "" },
			want: domain.ErrUserRequired,
		},
		{
			name: "no currency",
			mut:  func(o *domain.Order) { o.Currency = "" },
			want: domain.ErrCurrencyRequired,
		},
		{
			name: "no items",
			mut:  func(o *domain.Order) { o.Items = nil },
			want: domain.ErrItemsRequired,
		},
		{
			name: "quantity invalid",
			mut:  func(o *domain.Order) { o.Items[0].Quantity = 0 },
			want: domain.ErrItemQtyInvalid,
		},
		{
			name: "price invalid",
			mut:  func(o *domain.Order) { o.Items[0].UnitPrice = -5 },
			want: domain.ErrItemPriceInvalid,
		},
		{
			name: "item total drift",
			mut:  func(o *domain.Order) { o.Items[0].TotalPrice = 1 },
			want: domain.ErrItemTotalMismatch,
		},
		{
			name: "amount mismatch",
			mut:  func(o *domain.Order) { o.TotalAmount = 999 },
			want: domain.ErrAmountMismatch,
		},
		{
			name: "unknown status",
			mut:  func(o *domain.Order) { o.Status = "shipped" },
			want: domain.ErrStatusUnknown,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if !containsErr(errs, tc.want) {
				t.Fatalf("expected %v in %v", tc.want, errs)
			}
		})
	}
}

func TestOrderRecalculate(t *testing.T) {
	order := makeOrder()
	order.Items = append(order.Items, domain.OrderItem{ProductID: "qr-stickers", Quantity: 3, UnitPrice: 3000})
	order.Items[0].Quantity = 1

	order.Recalculate()

	if order.Items[0].TotalPrice != 20000 || order.Items[1].TotalPrice != 9000 {
		t.Fatalf("unexpected item totals: %+v", order.Items)
	}
	if order.TotalAmount != 29000 {
		t.Fatalf("expected total 29000, got %d", order.TotalAmount)
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("recalculated order must be valid, got %v", errs)
	}
}

func TestOrderCanCustomerModify(t *testing.T) {
	cases := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:    true,
		domain.OrderStatusProcessing: false,
		domain.OrderStatusDelivered:  false,
		domain.OrderStatusCancelled:  false,
	}
	for status, want := range cases {
		order := makeOrder()
		order.Status = status
		if got := order.CanCustomerModify(); got != want {
			t.Fatalf("status %s: CanCustomerModify=%v, want %v", status, got, want)
		}
	}
}

func TestOrderTouchIsStrictlyMonotonic(t *testing.T) {
	order := makeOrder()
	prev := order.UpdatedAt

	order.Touch(prev)
	if !order.UpdatedAt.After(prev) {
		t.Fatalf("expected UpdatedAt to move forward on a stalled clock")
	}

	prev = order.UpdatedAt
	order.Touch(prev.Add(-time.Hour))
	if !order.UpdatedAt.After(prev) {
		t.Fatalf("expected UpdatedAt to move forward when the clock goes backwards")
	}

	later := prev.Add(time.Minute)
	order.Touch(later)
	if !order.UpdatedAt.Equal(later) {
		t.Fatalf("expected UpdatedAt=%v, got %v", later, order.UpdatedAt)
	}
}

func TestOrderTouchTruncatesToMicroseconds(t *testing.T) {
	order := makeOrder()
	now := order.UpdatedAt.Add(time.Minute + 123456789*time.Nanosecond)

	order.Touch(now.In(time.FixedZone("WAT", 3600)))
	want := now.UTC().Truncate(time.Microsecond)
	if !order.UpdatedAt.Equal(want) || order.UpdatedAt.Location() != time.UTC {
		t.Fatalf("expected UpdatedAt=%v in UTC, got %v", want, order.UpdatedAt)
	}
	if order.UpdatedAt.Nanosecond()%1000 != 0 {
		t.Fatalf("expected microsecond precision, got %v", order.UpdatedAt)
	}

	// Тот же момент с наносекундами не откатывает время назад.
	prev := order.UpdatedAt
	order.Touch(now)
	if !order.UpdatedAt.Equal(prev.Add(time.Microsecond)) {
		t.Fatalf("expected UpdatedAt=%v, got %v", prev.Add(time.Microsecond), order.UpdatedAt)
	}
}

func TestStoredTime(t *testing.T) {
	in := time.Date(2025, 3, 14, 9, 30, 0, 999999999, time.FixedZone("WAT", 3600))
	got := domain.StoredTime(in)
	if got.Location() != time.UTC || got.Nanosecond() != 999999000 {
		t.Fatalf("unexpected stored time %v", got)
	}
}

func TestOrderCloneDoesNotShareItems(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Items[0].Quantity = 7

	if order.Items[0].Quantity != 2 {
		t.Fatalf("clone mutated source order items")
	}
}

func TestCustomerInfoFullName(t *testing.T) {
	if got := (domain.CustomerInfo{FirstName: "Awa", LastName: "Diop"}).FullName(); got != "Awa Diop" {
		t.Fatalf("unexpected full name %q", got)
	}
	if got := (domain.CustomerInfo{LastName: "Diop"}).FullName(); got != "Diop" {
		t.Fatalf("unexpected full name %q", got)
	}
}

func containsErr(errs []error, target error) bool {
	for _, err := range errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
