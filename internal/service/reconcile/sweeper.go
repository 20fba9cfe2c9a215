package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultItemTimeout   = 3 * time.Second
	defaultBatchSize     = 200
)

var (
	reconcileRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfs_reconcile_runs_total",
		Help: "Total number of payment reconciliation sweeps grouped by result.",
	}, []string{"result"})
	reconcileChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfs_reconcile_checks_total",
		Help: "Total number of per-payment gateway checks grouped by outcome.",
	}, []string{"outcome"})
	reconcileLastRepaired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfs_reconcile_last_repaired",
		Help: "Number of payments repaired during the last sweep.",
	})
)

// SweeperOptions задаёт параметры reconciliation sweep.
type SweeperOptions struct {
	Logger      *log.Entry
	Interval    time.Duration
	ItemTimeout time.Duration
	BatchSize   int
}

// Option настраивает Sweeper.
type Option func(*SweeperOptions)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *SweeperOptions) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами.
func WithInterval(interval time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.Interval = interval
	}
}

// WithItemTimeout задаёт таймаут запроса к шлюзу на один платёж.
func WithItemTimeout(timeout time.Duration) Option {
	return func(opts *SweeperOptions) {
		opts.ItemTimeout = timeout
	}
}

// WithBatchSize ограничивает число платежей, проверяемых за один проход.
func WithBatchSize(batchSize int) Option {
	return func(opts *SweeperOptions) {
		opts.BatchSize = batchSize
	}
}

// Sweeper периодически сверяет незавершённые платежи с шлюзом и чинит
// потерянные callback'и: найденный конечный статус превращается в то же
// событие завершения, которое породил бы webhook. Обработчик завершения
// идемпотентен, поэтому гонка sweep/callback безопасна.
type Sweeper struct {
	payments    domain.PaymentRepository
	gateway     domain.PaymentGateway
	bus         *dispatcher.Dispatcher
	logger      *log.Entry
	interval    time.Duration
	itemTimeout time.Duration
	batchSize   int

	// enabled переключается на лету админ-ручками pause/resume.
	enabled atomic.Bool
}

// NewSweeper создаёт reconciliation sweeper. Создаётся включённым.
func NewSweeper(payments domain.PaymentRepository, gateway domain.PaymentGateway, bus *dispatcher.Dispatcher, options ...Option) *Sweeper {
	opts := SweeperOptions{
		Interval:    defaultSweepInterval,
		ItemTimeout: defaultItemTimeout,
		BatchSize:   defaultBatchSize,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "reconcile-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	s := &Sweeper{
		payments:    payments,
		gateway:     gateway,
		bus:         bus,
		logger:      logger,
		interval:    opts.Interval,
		itemTimeout: opts.ItemTimeout,
		batchSize:   opts.BatchSize,
	}
	s.enabled.Store(true)
	return s
}

// Pause останавливает проходы без остановки воркера.
func (s *Sweeper) Pause() {
	s.enabled.Store(false)
	s.logger.Info("reconciliation paused")
}

// Resume возобновляет проходы.
func (s *Sweeper) Resume() {
	s.enabled.Store(true)
	s.logger.Info("reconciliation resumed")
}

// Enabled сообщает, активны ли проходы.
func (s *Sweeper) Enabled() bool {
	return s.enabled.Load()
}

// Run запускает периодическую сверку до отмены ctx.
func (s *Sweeper) Run(ctx context.Context) {
	if s.payments == nil || s.gateway == nil || s.bus == nil {
		s.logger.Warn("reconcile sweeper is disabled: missing dependency")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if !s.enabled.Load() {
		reconcileRunsTotal.WithLabelValues("skipped").Inc()
		return
	}

	repaired, err := s.ProcessOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		reconcileRunsTotal.WithLabelValues("error").Inc()
		s.logger.WithError(err).Warn("reconciliation sweep failed")
		return
	}

	reconcileRunsTotal.WithLabelValues("ok").Inc()
	reconcileLastRepaired.Set(float64(repaired))
	if repaired > 0 {
		s.logger.WithField("repaired", repaired).Info("reconciliation sweep completed")
	}
}

// ProcessOnce выполняет один проход по незавершённым платежам. Ошибки
// отдельных платежей изолированы: один недоступный платёж не срывает
// проверку остальных.
func (s *Sweeper) ProcessOnce(ctx context.Context) (int, error) {
	pending, err := s.payments.ListPending(s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending payments: %w", err)
	}

	repaired := 0
	for _, payment := range pending {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}

		changed, err := s.checkOne(ctx, payment)
		if err != nil {
			reconcileChecksTotal.WithLabelValues("error").Inc()
			s.logger.WithError(err).WithField("transaction_key", payment.TransactionKey).Warn("payment recheck failed")
			continue
		}
		if changed {
			repaired++
		}
	}

	return repaired, nil
}

// RecheckOne принудительно сверяет один платёж (админ-ручка).
func (s *Sweeper) RecheckOne(ctx context.Context, transactionKey string) (bool, error) {
	payment, err := s.payments.Get(transactionKey)
	if err != nil {
		return false, err
	}
	if payment.Status.Terminal() {
		return false, nil
	}
	return s.checkOne(ctx, payment)
}

// checkOne спрашивает шлюз об итоге платежа. Конечный статус публикуется
// как обычное завершение оплаты.
func (s *Sweeper) checkOne(ctx context.Context, payment domain.Payment) (bool, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
	defer cancel()

	result, err := s.gateway.GetPaymentInfo(itemCtx, payment.TransactionKey, payment.UserID)
	if err != nil {
		return false, fmt.Errorf("gateway lookup %s: %w", payment.TransactionKey, err)
	}

	if !result.Status.Terminal() || result.Status == payment.Status {
		reconcileChecksTotal.WithLabelValues("unchanged").Inc()
		return false, nil
	}

	reconcileChecksTotal.WithLabelValues("repaired").Inc()
	s.logger.WithFields(log.Fields{
		"transaction_key": payment.TransactionKey,
		"order_no":        payment.OrderNo,
		"status":          result.Status,
	}).Info("reconciliation found terminal payment, dispatching completion")

	ev := dispatcher.NewEvent(dispatcher.EventPaymentCompleted, payment.OrderNo)
	ev.TransactionKey = payment.TransactionKey
	ev.Success = result.Status == domain.PaymentStatusSuccess
	ev.Reason = result.Reason
	s.bus.Dispatch(ev)
	return true, nil
}
