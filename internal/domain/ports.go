package domain

import (
	"context"
	"time"
)

// CreatePaymentRequest — запрос на создание платежа у внешнего шлюза.
type CreatePaymentRequest struct {
	OrderNo        string
	UserID         string
	AmountMinor    int64
	CardDescriptor string
	CallbackURL    string
}

// GatewayResult — ответ шлюза на создание платежа или запрос статуса.
type GatewayResult struct {
	TransactionKey string
	Status         PaymentStatus
	Reason         string
}

// PaymentGateway описывает контракт внешнего платёжного сервиса.
// Реализация обязана возвращать ErrPaymentDeclined для окончательных отказов,
// ErrGatewayTemporary для повторяемых сбоев и ErrPaymentUnavailable,
// когда вызовы отсекаются circuit breaker'ом или retry-бюджет исчерпан.
type PaymentGateway interface {
	// CreatePayment инициирует списание; при успехе шлюз выдаёт transaction key.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (GatewayResult, error)
	// GetPaymentInfo возвращает текущий статус платежа по transaction key.
	GetPaymentInfo(ctx context.Context, transactionKey, userID string) (GatewayResult, error)
}

// UserDirectory — read-only доступ к профилям покупателей.
type UserDirectory interface {
	// GetUser возвращает пользователя или ErrUserNotFound.
	GetUser(id string) (User, error)
	// GetBalance возвращает баланс баллов пользователя.
	GetBalance(userID string) (int64, error)
}

// CardVault — read-only доступ к сохранённым картам.
type CardVault interface {
	// GetCard возвращает карту пользователя или ErrCardNotFound.
	GetCard(userID string) (Card, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
