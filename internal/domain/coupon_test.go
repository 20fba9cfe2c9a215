package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

func TestCoupon_DiscountFor_Ratio(t *testing.T) {
	coupon := domain.Coupon{
		CouponNo: "c-1",
		UserID:   "user-1",
		Type:     domain.DiscountTypeRatio,
		Rate:     0.1,
		CapMinor: 10000,
	}

	// 10% от 20000 = 2000, cap не срабатывает.
	if got := coupon.DiscountFor(20000); got != 2000 {
		t.Fatalf("expected discount 2000, got %d", got)
	}
}

func TestCoupon_DiscountFor_RatioCapped(t *testing.T) {
	coupon := domain.Coupon{
		CouponNo: "c-2",
		UserID:   "user-1",
		Type:     domain.DiscountTypeRatio,
		Rate:     0.5,
		CapMinor: 1000,
	}

	if got := coupon.DiscountFor(20000); got != 1000 {
		t.Fatalf("expected cap 1000, got %d", got)
	}
}

func TestCoupon_DiscountFor_Fixed(t *testing.T) {
	coupon := domain.Coupon{
		CouponNo:    "c-3",
		UserID:      "user-1",
		Type:        domain.DiscountTypeFixed,
		AmountMinor: 1500,
	}

	if got := coupon.DiscountFor(20000); got != 1500 {
		t.Fatalf("expected discount 1500, got %d", got)
	}
	// Скидка не превышает сумму позиций.
	if got := coupon.DiscountFor(1000); got != 1000 {
		t.Fatalf("expected discount clamped to 1000, got %d", got)
	}
}

func TestCoupon_DiscountFor_EmptySubtotal(t *testing.T) {
	coupon := domain.Coupon{
		CouponNo:    "c-4",
		UserID:      "user-1",
		Type:        domain.DiscountTypeFixed,
		AmountMinor: 500,
	}

	if got := coupon.DiscountFor(0); got != 0 {
		t.Fatalf("expected zero discount, got %d", got)
	}
}

func TestCoupon_Validate(t *testing.T) {
	coupon := domain.Coupon{
		CouponNo: "c-5",
		UserID:   "user-1",
		Type:     domain.DiscountTypeRatio,
		Rate:     1.5,
	}
	if errs := coupon.Validate(); len(errs) == 0 {
		t.Fatal("expected rate validation error")
	}

	coupon.Rate = 0.2
	if errs := coupon.Validate(); len(errs) != 0 {
		t.Fatalf("expected valid coupon, got %v", errs)
	}
}
