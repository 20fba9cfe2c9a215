package domain

import "errors"

var (
	// Ошибки валидации (InvalidArgument): отклоняются синхронно и не повторяются.
	ErrUserRequired           = errors.New("user_id is required")
	ErrItemsRequired          = errors.New("order must contain at least one item")
	ErrItemProductRequired    = errors.New("item product_id is required")
	ErrItemQtyInvalid         = errors.New("item qty must be greater than zero")
	ErrItemPriceInvalid       = errors.New("item price must be non-negative")
	ErrDiscountNegative       = errors.New("discount must be non-negative")
	ErrDiscountMismatch       = errors.New("declared discount does not match coupon rule")
	ErrAmountMismatch         = errors.New("order total does not match items sum minus discount")
	ErrAmountNegative         = errors.New("order total must be non-negative")
	ErrOrderNoRequired        = errors.New("order_no is required")
	ErrTransactionKeyRequired = errors.New("transaction_key is required")
	ErrPaymentAmountNegative  = errors.New("payment amount must be non-negative")
	ErrCouponNoRequired       = errors.New("coupon_no is required")
	ErrCouponTypeInvalid      = errors.New("coupon discount type is unknown")
	ErrCouponRateInvalid      = errors.New("coupon rate must be within [0,1]")
	ErrCouponAmountInvalid    = errors.New("coupon amount must be non-negative")
	ErrCouponCapInvalid       = errors.New("coupon cap must be non-negative")

	// Ошибки отсутствия (NotFound): разрешаются синхронно.
	ErrUserNotFound    = errors.New("user not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrPaymentNotFound = errors.New("payment not found")
	ErrCouponNotFound  = errors.New("coupon not found")
	ErrLikeNotFound    = errors.New("like not found")
	ErrCardNotFound    = errors.New("card is not registered")

	// ErrInsufficientBalance — баланс баллов не покрывает итог заказа.
	// Проверяется при приёме заказа и повторно перед обращением к шлюзу.
	ErrInsufficientBalance = errors.New("insufficient balance for order total")

	// Конфликты (Conflict): различимый исход, а не аварийный сбой.
	// ErrCouponAlreadyUsed обязан отличаться от ErrCouponNotFound —
	// повторная попытка погашения не должна маскироваться под отсутствие купона.
	ErrCouponAlreadyUsed = errors.New("coupon already used")
	ErrAlreadyLiked      = errors.New("product already liked by this user")
	ErrPaymentDuplicate  = errors.New("payment already recorded for this order")

	// Конфликты версий при оптимистичном обновлении.
	ErrOrderVersionConflict   = errors.New("order version conflict")
	ErrCounterVersionConflict = errors.New("counter version conflict")

	// Ошибки платёжного шлюза.
	// ErrPaymentDeclined — окончательный отказ, повтор бессмысленен.
	ErrPaymentDeclined = errors.New("payment declined by gateway")
	// ErrGatewayTemporary — временная ошибка сети/шлюза, допускается retry.
	ErrGatewayTemporary = errors.New("payment gateway temporary error")
	// ErrPaymentUnavailable — circuit breaker открыт или попытки исчерпаны (ServiceUnavailable).
	ErrPaymentUnavailable = errors.New("payment gateway unavailable")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, относится ли ошибка к классу NotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrLikeNotFound) ||
		errors.Is(err, ErrCardNotFound)
}

// IsConflict проверяет, относится ли ошибка к классу Conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrCouponAlreadyUsed) ||
		errors.Is(err, ErrAlreadyLiked) ||
		errors.Is(err, ErrPaymentDuplicate)
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCounterVersionConflict)
}

// IsUnavailable проверяет, является ли ошибка недоступностью шлюза.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrPaymentUnavailable)
}

// IsRetryable сообщает, имеет ли смысл повторять операцию с этой ошибкой.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrGatewayTemporary)
}
