package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

// paymentRepositoryInMemory — in-memory реализация PaymentRepository.
type paymentRepositoryInMemory struct {
	mu      sync.RWMutex
	byKey   map[string]domain.Payment
	byOrder map[string]string // order_no -> transaction_key, композитная уникальность
}

// NewPaymentRepository возвращает in-memory репозиторий платежей.
func NewPaymentRepository() domain.PaymentRepository {
	return &paymentRepositoryInMemory{
		byKey:   make(map[string]domain.Payment),
		byOrder: make(map[string]string),
	}
}

// Create сохраняет платёж, отклоняя дубликаты по ключу или заказу.
func (r *paymentRepositoryInMemory) Create(payment domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byKey[payment.TransactionKey]; exists {
		return domain.ErrPaymentDuplicate
	}
	if _, exists := r.byOrder[payment.OrderNo]; exists {
		return domain.ErrPaymentDuplicate
	}

	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	r.byKey[payment.TransactionKey] = payment
	r.byOrder[payment.OrderNo] = payment.TransactionKey
	return nil
}

// Get возвращает платёж или ErrPaymentNotFound.
func (r *paymentRepositoryInMemory) Get(transactionKey string) (domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.byKey[transactionKey]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return payment, nil
}

// ListPending возвращает платежи в статусе pending, старые первыми.
func (r *paymentRepositoryInMemory) ListPending(limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Payment, 0)
	for _, payment := range r.byKey {
		if payment.Status != domain.PaymentStatusPending {
			continue
		}
		result = append(result, payment)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// UpdateStatus переводит платёж из pending в конечный статус.
func (r *paymentRepositoryInMemory) UpdateStatus(transactionKey string, status domain.PaymentStatus, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.byKey[transactionKey]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if payment.Status.Terminal() {
		// Повтор того же статуса — no-op, переход между конечными запрещён.
		if payment.Status == status {
			return nil
		}
		return domain.ErrPaymentDuplicate
	}

	payment.Status = status
	payment.Reason = reason
	payment.UpdatedAt = time.Now().UTC()
	r.byKey[transactionKey] = payment
	return nil
}

var _ domain.PaymentRepository = (*paymentRepositoryInMemory)(nil)
