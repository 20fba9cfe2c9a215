package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

func newOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		OrderNo: "order-1",
		UserID:  "user-1",
		Status:  domain.OrderStatusSubmitted,
		Items: []domain.OrderItem{
			{ProductID: "sku-1", Qty: 2, PriceMinor: 1000},
			{ProductID: "sku-2", Qty: 1, PriceMinor: 500},
		},
		TotalMinor: 2500,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestOrder_Subtotal(t *testing.T) {
	order := newOrder()
	if got := order.Subtotal(); got != 2500 {
		t.Fatalf("expected subtotal 2500, got %d", got)
	}
}

func TestOrder_ValidateInvariants(t *testing.T) {
	order := newOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid order, got %v", errs)
	}
}

func TestOrder_ValidateInvariants_AmountMismatch(t *testing.T) {
	order := newOrder()
	order.TotalMinor = 9999

	errs := order.ValidateInvariants()
	if len(errs) == 0 {
		t.Fatal("expected validation errors")
	}
	found := false
	for _, err := range errs {
		if errors.Is(err, domain.ErrAmountMismatch) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ErrAmountMismatch, got %v", errs)
	}
}

func TestOrder_ValidateInvariants_DiscountReducesTotal(t *testing.T) {
	order := newOrder()
	order.DiscountMinor = 500
	order.TotalMinor = 2000

	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected valid discounted order, got %v", errs)
	}
}

func TestOrder_ValidateInvariants_BadItems(t *testing.T) {
	order := newOrder()
	order.Items = []domain.OrderItem{{ProductID: "", Qty: 0, PriceMinor: -1}}
	order.TotalMinor = 0

	errs := order.ValidateInvariants()
	if len(errs) < 3 {
		t.Fatalf("expected product/qty/price errors, got %v", errs)
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	cases := []struct {
		status   domain.OrderStatus
		terminal bool
	}{
		{domain.OrderStatusSubmitted, false},
		{domain.OrderStatusPaymentPending, false},
		{domain.OrderStatusPaid, false},
		{domain.OrderStatusFulfilled, true},
		{domain.OrderStatusPaymentFailed, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Fatalf("status %s: expected terminal=%v, got %v", tc.status, tc.terminal, got)
		}
	}
}

func TestClampDelta(t *testing.T) {
	if next, clamped := domain.ClampDelta(5, -3); next != 2 || clamped {
		t.Fatalf("expected (2,false), got (%d,%v)", next, clamped)
	}
	if next, clamped := domain.ClampDelta(2, -5); next != 0 || !clamped {
		t.Fatalf("expected (0,true), got (%d,%v)", next, clamped)
	}
	if next, clamped := domain.ClampDelta(0, 7); next != 7 || clamped {
		t.Fatalf("expected (7,false), got (%d,%v)", next, clamped)
	}
}
