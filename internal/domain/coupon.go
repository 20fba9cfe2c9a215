package domain

import "time"

// DiscountType определяет правило расчёта скидки купона.
type DiscountType string

const (
	// DiscountTypeRatio — процентная скидка с верхней границей.
	DiscountTypeRatio DiscountType = "ratio"
	// DiscountTypeFixed — фиксированная сумма с верхней границей.
	DiscountTypeFixed DiscountType = "fixed"
)

// Coupon — персональный купон пользователя. Флаг Used переходит
// false → true ровно один раз, под блокировкой по (user_id, coupon_no).
type Coupon struct {
	CouponNo    string
	UserID      string
	Type        DiscountType
	Rate        float64 // для ratio-купонов, в диапазоне [0,1]
	AmountMinor int64   // для fixed-купонов
	CapMinor    int64
	Used        bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет корректность правила скидки.
func (c *Coupon) Validate() []error {
	var errs []error

	if c.CouponNo == "" {
		errs = append(errs, ErrCouponNoRequired)
	}
	if c.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	switch c.Type {
	case DiscountTypeRatio:
		if c.Rate < 0 || c.Rate > 1 {
			errs = append(errs, ErrCouponRateInvalid)
		}
	case DiscountTypeFixed:
		if c.AmountMinor < 0 {
			errs = append(errs, ErrCouponAmountInvalid)
		}
	default:
		errs = append(errs, ErrCouponTypeInvalid)
	}
	if c.CapMinor < 0 {
		errs = append(errs, ErrCouponCapInvalid)
	}

	return errs
}

// DiscountFor вычисляет скидку для заданной суммы позиций.
// Результат никогда не превышает ни cap, ни саму сумму.
func (c *Coupon) DiscountFor(subtotalMinor int64) int64 {
	if subtotalMinor <= 0 {
		return 0
	}

	var discount int64
	switch c.Type {
	case DiscountTypeRatio:
		discount = int64(float64(subtotalMinor) * c.Rate)
	case DiscountTypeFixed:
		discount = c.AmountMinor
	default:
		return 0
	}

	if c.CapMinor > 0 && discount > c.CapMinor {
		discount = c.CapMinor
	}
	if discount > subtotalMinor {
		discount = subtotalMinor
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}
