package domain

import "time"

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusSubmitted — заказ принят и сохранён, оплата ещё не запускалась.
	OrderStatusSubmitted OrderStatus = "submitted"
	// OrderStatusPaymentPending — платёж инициирован, ждём ответ шлюза или callback.
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	// OrderStatusPaid — оплата подтверждена, сток списан.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFulfilled — заказ финализирован после фиксации стока.
	OrderStatusFulfilled OrderStatus = "fulfilled"
	// OrderStatusPaymentFailed — платёж отклонён или не состоялся.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// Terminal сообщает, достиг ли заказ конечного статуса.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusPaymentFailed
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ProductID — идентификатор товара в каталоге.
	ProductID string
	// Qty — количество единиц товара, строго положительное.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
}

// Order агрегирует состояние заказа и его позиции.
// Запись создаётся один раз и никогда не удаляется (аудит);
// мутируется только статус, и только обработчиками саги.
type Order struct {
	OrderNo       string
	UserID        string
	Status        OrderStatus
	Items         []OrderItem
	CouponNo      string // пустая строка — заказ без купона
	DiscountMinor int64
	TotalMinor    int64
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Subtotal возвращает сумму позиций без учёта скидки.
func (o *Order) Subtotal() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += int64(item.Qty) * item.PriceMinor
	}
	return sum
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if o.DiscountMinor < 0 {
		errs = append(errs, ErrDiscountNegative)
	}

	// Сверяем итог: total = subtotal - discount.
	if o.TotalMinor != o.Subtotal()-o.DiscountMinor {
		errs = append(errs, ErrAmountMismatch)
	}
	if o.TotalMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}

	return errs
}
