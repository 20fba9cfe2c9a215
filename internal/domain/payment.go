package domain

import "time"

// PaymentStatus описывает состояние платежа у шлюза.
type PaymentStatus string

const (
	// PaymentStatusPending — шлюз принял запрос, итог ещё не известен.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusSuccess — списание подтверждено.
	PaymentStatusSuccess PaymentStatus = "success"
	// PaymentStatusFail — шлюз отклонил платёж.
	PaymentStatusFail PaymentStatus = "fail"
)

// Terminal сообщает, является ли статус платежа конечным.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusSuccess || s == PaymentStatusFail
}

// Payment описывает платёж по заказу. Идентификатор — transaction key,
// который выдаёт шлюз; на заказ допускается ровно одна запись
// (уникальность по паре order_no + transaction_key).
type Payment struct {
	TransactionKey string
	OrderNo        string
	UserID         string
	AmountMinor    int64
	CardDescriptor string
	Status         PaymentStatus
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Validate проверяет корректность полей платежа и возвращает ошибки, если они есть.
func (p *Payment) Validate() []error {
	var errs []error

	if p.TransactionKey == "" {
		errs = append(errs, ErrTransactionKeyRequired)
	}
	if p.OrderNo == "" {
		errs = append(errs, ErrOrderNoRequired)
	}
	if p.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if p.AmountMinor < 0 {
		errs = append(errs, ErrPaymentAmountNegative)
	}

	return errs
}
