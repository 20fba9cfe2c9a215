package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ошибку, если номер уже занят.
	Create(order Order) error
	// Get возвращает заказ по номеру или ErrOrderNotFound, если его нет.
	Get(orderNo string) (Order, error)
	// ListByUser возвращает заказы пользователя с опциональным лимитом.
	ListByUser(userID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// PaymentRepository описывает хранилище платежей.
type PaymentRepository interface {
	// Create сохраняет платёж; повторная запись по тому же заказу
	// отклоняется с ErrPaymentDuplicate (композитная уникальность).
	Create(payment Payment) error
	// Get возвращает платёж по transaction key или ErrPaymentNotFound.
	Get(transactionKey string) (Payment, error)
	// ListPending возвращает платежи в статусе pending, не более limit.
	ListPending(limit int) ([]Payment, error)
	// UpdateStatus переводит платёж в конечный статус. Перевод выполняется
	// только из pending; повторный вызов с тем же статусом — no-op.
	UpdateStatus(transactionKey string, status PaymentStatus, reason string) error
}

// CouponRepository описывает хранилище купонов.
type CouponRepository interface {
	// Get возвращает купон или ErrCouponNotFound.
	Get(couponNo string) (Coupon, error)
	// MarkUsed помечает купон использованным под блокировкой по (userID, couponNo).
	// Возвращает ErrCouponNotFound, если купон не существует или принадлежит
	// другому пользователю, и ErrCouponAlreadyUsed при повторной попытке.
	MarkUsed(userID, couponNo string) error
}

// CounterRepository описывает хранилище общих числовых агрегатов.
// Запись создаётся лениво со значением ноль при первом обращении.
type CounterRepository interface {
	// Get возвращает текущее значение и версию счётчика.
	Get(kind CounterKind, entityID string) (Counter, error)
	// ApplyLocked применяет дельту под эксклюзивной блокировкой строки.
	// Значение обрезается на нуле; второй результат — признак обрезки.
	ApplyLocked(kind CounterKind, entityID string, delta int64) (int64, bool, error)
	// CompareAndSwap записывает новое значение при совпадении версии,
	// иначе возвращает ErrCounterVersionConflict.
	CompareAndSwap(counter Counter, newValue int64) error
}

// LikeRepository хранит факты лайков (set membership).
type LikeRepository interface {
	// Add фиксирует лайк; дубликат отклоняется с ErrAlreadyLiked.
	Add(userID, productID string) error
	// Remove удаляет лайк или возвращает ErrLikeNotFound.
	Remove(userID, productID string) error
	// Count возвращает число фактов по товару (для сверки с агрегатом).
	Count(productID string) (int64, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}
