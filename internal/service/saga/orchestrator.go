package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/metrics"
	"github.com/vladislavdragonenkov/rfs/internal/service/counter"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
)

const statusRetries = 3

// Deps перечисляет зависимости оркестратора.
type Deps struct {
	Orders   domain.OrderRepository
	Payments domain.PaymentRepository
	Coupons  domain.CouponRepository
	Counters *counter.Controller
	Users    domain.UserDirectory
	Cards    domain.CardVault
	Gateway  domain.PaymentGateway
	Outbox   domain.OutboxRepository
	Bus      *dispatcher.Dispatcher
	// CallbackURL передаётся шлюзу для асинхронного webhook.
	CallbackURL string
}

// Orchestrator ведёт сагу размещения заказа: валидация и создание заказа,
// затем цепочка событий payment → stock/coupon → analytics. Статус заказа —
// single-writer граница: все переходы идут через optimistic CAS по строке
// заказа, поэтому callback и reconciliation могут гоняться за одно и то же
// завершение — состояние мутирует только первый.
type Orchestrator struct {
	deps    Deps
	logger  *log.Entry
	metrics *metrics.SagaMetrics
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(deps Deps, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.WithField("component", "saga")
	}
	return &Orchestrator{
		deps:    deps,
		logger:  logger,
		metrics: metrics.NewSagaMetrics(),
	}
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(deps Deps, logger *log.Entry) *Orchestrator {
	o := NewOrchestrator(deps, logger)
	o.metrics = nil
	return o
}

// Register заполняет таблицу диспетчеризации событий саги.
func (o *Orchestrator) Register(bus *dispatcher.Dispatcher) error {
	table := map[dispatcher.EventType]dispatcher.HandlerFunc{
		dispatcher.EventOrderCreated:     o.HandleOrderCreated,
		dispatcher.EventPaymentAttempt:   o.HandlePaymentAttempt,
		dispatcher.EventPaymentCompleted: o.HandlePaymentCompleted,
		dispatcher.EventCouponUsage:      o.HandleCouponUsage,
		dispatcher.EventStockCommitted:   o.HandleStockCommitted,
		dispatcher.EventAnalyticsEmit:    o.HandleAnalytics,
	}
	for eventType, handler := range table {
		if err := bus.Register(eventType, handler); err != nil {
			return err
		}
	}
	return nil
}

// Submit валидирует и сохраняет заказ, после чего планирует событие
// order.created. Скидка, заявленная клиентом, сверяется с расчётом по
// правилу купона — расхождение отклоняется как InvalidArgument. Баланс
// баллов должен покрывать итог заказа уже на приёме.
func (o *Orchestrator) Submit(userID string, items []domain.OrderItem, couponNo string, declaredDiscountMinor int64) (domain.Order, error) {
	if _, err := o.deps.Users.GetUser(userID); err != nil {
		return domain.Order{}, err
	}

	now := time.Now().UTC()
	order := domain.Order{
		OrderNo:       uuid.NewString(),
		UserID:        userID,
		Status:        domain.OrderStatusSubmitted,
		Items:         items,
		CouponNo:      couponNo,
		DiscountMinor: declaredDiscountMinor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if couponNo != "" {
		coupon, err := o.deps.Coupons.Get(couponNo)
		if err != nil {
			return domain.Order{}, err
		}
		if coupon.UserID != userID {
			return domain.Order{}, domain.ErrCouponNotFound
		}
		if coupon.Used {
			return domain.Order{}, domain.ErrCouponAlreadyUsed
		}
		if computed := coupon.DiscountFor(order.Subtotal()); computed != declaredDiscountMinor {
			return domain.Order{}, domain.ErrDiscountMismatch
		}
	} else if declaredDiscountMinor != 0 {
		return domain.Order{}, domain.ErrDiscountMismatch
	}

	order.TotalMinor = order.Subtotal() - order.DiscountMinor
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	balance, err := o.deps.Users.GetBalance(userID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load balance for %s: %w", userID, err)
	}
	if balance < order.TotalMinor {
		return domain.Order{}, domain.ErrInsufficientBalance
	}

	if err := o.deps.Orders.Create(order); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordOrderSubmitted()
	}

	// Событие публикуется только после фиксации заказа.
	o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventOrderCreated, order.OrderNo))

	o.logger.WithFields(log.Fields{
		"order_no": order.OrderNo,
		"user_id":  userID,
		"total":    order.TotalMinor,
	}).Info("order submitted")

	return order, nil
}

// HandleOrderCreated разветвляет сагу: попытка оплаты и независимое
// погашение купона.
func (o *Orchestrator) HandleOrderCreated(ctx context.Context, ev dispatcher.Event) error {
	if _, err := o.deps.Orders.Get(ev.OrderNo); err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}

	o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventPaymentAttempt, ev.OrderNo))
	o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventCouponUsage, ev.OrderNo))
	return nil
}

// HandlePaymentAttempt обращается к платёжному шлюзу. Сбой шлюза — доменный
// исход, а не ошибка обработчика: повторный вызов CreatePayment после
// частичного успеха рисковал бы двойным списанием.
func (o *Orchestrator) HandlePaymentAttempt(ctx context.Context, ev dispatcher.Event) error {
	order, err := o.deps.Orders.Get(ev.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}
	if order.Status != domain.OrderStatusSubmitted {
		o.logger.WithFields(log.Fields{
			"order_no": order.OrderNo,
			"status":   order.Status,
		}).Debug("payment already attempted, skipping")
		return nil
	}

	if ok, err := o.transition(&order, domain.OrderStatusSubmitted, domain.OrderStatusPaymentPending); err != nil {
		return err
	} else if !ok {
		return nil
	}

	// Баланс перепроверяется на момент списания: между приёмом заказа и
	// попыткой оплаты он мог уйти на другой заказ.
	balance, err := o.deps.Users.GetBalance(order.UserID)
	if err != nil {
		return fmt.Errorf("load balance for %s: %w", order.UserID, err)
	}
	if balance < order.TotalMinor {
		o.recordAttempt("insufficient_balance")
		o.dispatchCompletion(order.OrderNo, "", false, "insufficient balance")
		return nil
	}

	card, err := o.deps.Cards.GetCard(order.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrCardNotFound) {
			// Фиксируем неуспех без обращения к шлюзу.
			o.recordAttempt("no_card")
			o.dispatchCompletion(order.OrderNo, "", false, "card not registered")
			return nil
		}
		return fmt.Errorf("load card for %s: %w", order.UserID, err)
	}

	result, err := o.deps.Gateway.CreatePayment(ctx, domain.CreatePaymentRequest{
		OrderNo:        order.OrderNo,
		UserID:         order.UserID,
		AmountMinor:    order.TotalMinor,
		CardDescriptor: card.Descriptor,
		CallbackURL:    o.deps.CallbackURL,
	})
	switch {
	case err == nil:
		o.recordPayment(order, card, result)
	case errors.Is(err, domain.ErrPaymentDeclined):
		o.recordAttempt("declined")
		o.dispatchCompletion(order.OrderNo, "", false, err.Error())
	default:
		// Недоступность шлюза: заказ остаётся неоплаченным, причина в событии.
		o.logger.WithError(err).WithField("order_no", order.OrderNo).Warn("payment gateway unavailable")
		o.recordAttempt("unavailable")
		o.dispatchCompletion(order.OrderNo, "", false, "payment gateway unavailable")
	}
	return nil
}

// recordPayment сохраняет принятый шлюзом платёж и, если итог уже известен,
// публикует завершение.
func (o *Orchestrator) recordPayment(order domain.Order, card domain.Card, result domain.GatewayResult) {
	payment := domain.Payment{
		TransactionKey: result.TransactionKey,
		OrderNo:        order.OrderNo,
		UserID:         order.UserID,
		AmountMinor:    order.TotalMinor,
		CardDescriptor: card.Descriptor,
		Status:         domain.PaymentStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.deps.Payments.Create(payment); err != nil {
		if errors.Is(err, domain.ErrPaymentDuplicate) {
			o.logger.WithField("order_no", order.OrderNo).Warn("payment already recorded for order")
			return
		}
		o.logger.WithError(err).WithField("order_no", order.OrderNo).Error("persist payment failed")
		return
	}

	o.recordAttempt("accepted")

	switch result.Status {
	case domain.PaymentStatusSuccess:
		o.dispatchCompletion(order.OrderNo, result.TransactionKey, true, result.Reason)
	case domain.PaymentStatusFail:
		o.dispatchCompletion(order.OrderNo, result.TransactionKey, false, result.Reason)
	default:
		// Pending: итог принесёт callback шлюза или reconciliation sweep.
	}
}

// HandlePaymentCompleted завершает оплату. CAS перехода payment_pending→…
// делает обработчик идемпотентным: повторная доставка и гонка
// callback/reconciliation завершаются no-op'ом.
func (o *Orchestrator) HandlePaymentCompleted(ctx context.Context, ev dispatcher.Event) error {
	order, err := o.deps.Orders.Get(ev.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}
	if order.Status != domain.OrderStatusPaymentPending {
		o.logger.WithFields(log.Fields{
			"order_no": order.OrderNo,
			"status":   order.Status,
		}).Debug("completion for non-pending order, skipping")
		return nil
	}

	if !ev.Success {
		ok, err := o.transition(&order, domain.OrderStatusPaymentPending, domain.OrderStatusPaymentFailed)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		o.finishPayment(ev.TransactionKey, domain.PaymentStatusFail, ev.Reason)
		if o.metrics != nil {
			o.metrics.RecordOrderFailed(order.CreatedAt)
		}
		o.logger.WithFields(log.Fields{
			"order_no": order.OrderNo,
			"reason":   ev.Reason,
		}).Warn("order payment failed")
		o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventAnalyticsEmit, order.OrderNo))
		return nil
	}

	ok, err := o.transition(&order, domain.OrderStatusPaymentPending, domain.OrderStatusPaid)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	o.finishPayment(ev.TransactionKey, domain.PaymentStatusSuccess, ev.Reason)

	// Списание стока под блокировкой строки; декремент ниже нуля обрезается
	// и помечается как аномалия (oversell-and-flag).
	for _, item := range order.Items {
		result, err := o.deps.Counters.Apply(domain.CounterKindStock, item.ProductID, -int64(item.Qty), counter.StrategyRowLock)
		if err != nil {
			// Изоляция позиций: не срываем остальные списания повторной
			// доставкой, статус уже перешёл в paid.
			o.logger.WithError(err).WithFields(log.Fields{
				"order_no":   order.OrderNo,
				"product_id": item.ProductID,
			}).Error("stock decrement failed")
			continue
		}
		if o.metrics != nil {
			o.metrics.RecordStockDecrement(result.Clamped)
		}
	}

	o.logger.WithField("order_no", order.OrderNo).Info("order paid, stock committed")
	o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventStockCommitted, order.OrderNo))
	return nil
}

// HandleStockCommitted финализирует заказ.
func (o *Orchestrator) HandleStockCommitted(ctx context.Context, ev dispatcher.Event) error {
	order, err := o.deps.Orders.Get(ev.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}

	ok, err := o.transition(&order, domain.OrderStatusPaid, domain.OrderStatusFulfilled)
	if err != nil {
		return err
	}
	if ok {
		if o.metrics != nil {
			o.metrics.RecordOrderFulfilled(order.CreatedAt)
		}
		o.logger.WithField("order_no", order.OrderNo).Info("order fulfilled")
	}

	o.deps.Bus.Dispatch(dispatcher.NewEvent(dispatcher.EventAnalyticsEmit, order.OrderNo))
	return nil
}

// HandleCouponUsage помечает купон использованным. Ветка независима от
// оплаты: любой исход (уже использован, не найден) логируется и не
// проваливает заказ.
func (o *Orchestrator) HandleCouponUsage(ctx context.Context, ev dispatcher.Event) error {
	order, err := o.deps.Orders.Get(ev.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}
	if order.CouponNo == "" {
		return nil
	}

	err = o.deps.Coupons.MarkUsed(order.UserID, order.CouponNo)
	switch {
	case err == nil:
		o.recordCoupon("used")
		o.logger.WithFields(log.Fields{
			"order_no":  order.OrderNo,
			"coupon_no": order.CouponNo,
		}).Info("coupon consumed")
	case errors.Is(err, domain.ErrCouponAlreadyUsed):
		o.recordCoupon("already_used")
		o.logger.WithFields(log.Fields{
			"order_no":  order.OrderNo,
			"coupon_no": order.CouponNo,
		}).Warn("coupon already used, skipping")
	case errors.Is(err, domain.ErrCouponNotFound):
		o.recordCoupon("not_found")
		o.logger.WithFields(log.Fields{
			"order_no":  order.OrderNo,
			"coupon_no": order.CouponNo,
		}).Warn("coupon not found for user, skipping")
	default:
		return fmt.Errorf("mark coupon used: %w", err)
	}
	return nil
}

// HandleAnalytics кладёт аналитическое событие в outbox; наружу его
// публикует outbox worker.
func (o *Orchestrator) HandleAnalytics(ctx context.Context, ev dispatcher.Event) error {
	order, err := o.deps.Orders.Get(ev.OrderNo)
	if err != nil {
		return fmt.Errorf("load order %s: %w", ev.OrderNo, err)
	}

	payload, err := json.Marshal(map[string]any{
		"order_no":       order.OrderNo,
		"user_id":        order.UserID,
		"status":         string(order.Status),
		"total_minor":    order.TotalMinor,
		"discount_minor": order.DiscountMinor,
		"coupon_no":      order.CouponNo,
		"items":          len(order.Items),
		"ts":             time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal analytics payload: %w", err)
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.OrderNo,
		EventType:     "OrderAnalytics",
		Payload:       payload,
	}
	if _, err := o.deps.Outbox.Enqueue(msg); err != nil {
		return fmt.Errorf("enqueue analytics event: %w", err)
	}
	if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
	return nil
}

// dispatchCompletion публикует итог платежа в общую точку завершения.
func (o *Orchestrator) dispatchCompletion(orderNo, transactionKey string, success bool, reason string) {
	ev := dispatcher.NewEvent(dispatcher.EventPaymentCompleted, orderNo)
	ev.TransactionKey = transactionKey
	ev.Success = success
	ev.Reason = reason
	o.deps.Bus.Dispatch(ev)
}

// finishPayment переводит строку платежа в конечный статус (no-op при повторе).
func (o *Orchestrator) finishPayment(transactionKey string, status domain.PaymentStatus, reason string) {
	if transactionKey == "" {
		return
	}
	if err := o.deps.Payments.UpdateStatus(transactionKey, status, reason); err != nil {
		o.logger.WithError(err).WithField("transaction_key", transactionKey).Warn("update payment status failed")
	}
}

// transition выполняет переход from→to по строке заказа с optimistic
// locking. Возвращает false, если заказ уже ушёл из from (идемпотентный
// no-op для гонок callback/reconciliation и повторных доставок).
func (o *Orchestrator) transition(order *domain.Order, from, to domain.OrderStatus) (bool, error) {
	for attempt := 0; attempt < statusRetries; attempt++ {
		if order.Status != from {
			return false, nil
		}

		order.Status = to
		order.UpdatedAt = time.Now().UTC()
		prevVersion := order.Version

		err := o.deps.Orders.Save(*order)
		if err == nil {
			order.Version = prevVersion + 1
			return true, nil
		}
		if !domain.IsVersionConflict(err) {
			order.Status = from
			return false, fmt.Errorf("persist status %s: %w", to, err)
		}

		fresh, loadErr := o.deps.Orders.Get(order.OrderNo)
		if loadErr != nil {
			return false, fmt.Errorf("reload order after conflict: %w", loadErr)
		}
		*order = fresh
	}
	return false, domain.ErrOrderVersionConflict
}

func (o *Orchestrator) recordAttempt(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordPaymentAttempt(outcome)
	}
}

func (o *Orchestrator) recordCoupon(outcome string) {
	if o.metrics != nil {
		o.metrics.RecordCouponUsage(outcome)
	}
}
