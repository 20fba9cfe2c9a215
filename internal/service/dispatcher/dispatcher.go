package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond

	// drainTimeout ограничивает ожидание хвоста саг при остановке.
	drainTimeout = 30 * time.Second
)

var (
	eventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfs_dispatcher_events_total",
		Help: "Total number of dispatched saga events grouped by type and result.",
	}, []string{"event_type", "result"})
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rfs_dispatcher_queue_depth",
		Help: "Current number of events waiting in the dispatcher queue.",
	})
	handlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rfs_dispatcher_handler_duration_seconds",
		Help:    "Duration of saga event handlers in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"event_type"})
)

// EventType перечисляет события саги. Набор закрытый: каждый тип
// привязан к ровно одному обработчику через таблицу диспетчеризации,
// открытого publish/subscribe реестра нет.
type EventType string

const (
	// EventOrderCreated — заказ сохранён, можно запускать оплату и купон.
	EventOrderCreated EventType = "order.created"
	// EventPaymentAttempt — пора обращаться к платёжному шлюзу.
	EventPaymentAttempt EventType = "payment.attempt"
	// EventPaymentCompleted — известен итог платежа (callback, шлюз или reconcile).
	EventPaymentCompleted EventType = "payment.completed"
	// EventCouponUsage — независимая ветка погашения купона.
	EventCouponUsage EventType = "coupon.usage"
	// EventStockCommitted — сток списан, заказ можно финализировать.
	EventStockCommitted EventType = "stock.committed"
	// EventAnalyticsEmit — заказ достиг конечного статуса, отправляем аналитику.
	EventAnalyticsEmit EventType = "analytics.emit"
)

// Event — единица доставки между шагами саги.
type Event struct {
	ID             string
	Type           EventType
	OrderNo        string
	TransactionKey string
	Success        bool
	Reason         string
	OccurredAt     time.Time
}

// NewEvent создаёт событие с заполненными идентификатором и временем.
func NewEvent(t EventType, orderNo string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OrderNo:    orderNo,
		OccurredAt: time.Now().UTC(),
	}
}

// HandlerFunc обрабатывает одно событие в собственной единице работы.
// Возврат ошибки приводит к повторной доставке (at-least-once),
// поэтому обработчики обязаны быть идемпотентными.
type HandlerFunc func(ctx context.Context, ev Event) error

// Options задаёт параметры диспетчера.
type Options struct {
	Logger         *log.Entry
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Dispatcher.
type Option func(*Options)

// WithLogger задаёт logger для диспетчера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithWorkers задаёт размер пула воркеров.
func WithWorkers(workers int) Option {
	return func(opts *Options) {
		opts.Workers = workers
	}
}

// WithQueueSize задаёт ёмкость очереди событий.
func WithQueueSize(size int) Option {
	return func(opts *Options) {
		opts.QueueSize = size
	}
}

// WithMaxAttempts задаёт число попыток доставки события.
func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *Options) {
		opts.MaxAttempts = maxAttempts
	}
}

// WithRetryBaseDelay задаёт базовый delay для exponential backoff.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *Options) {
		opts.RetryBaseDelay = delay
	}
}

// Dispatcher доставляет события саги обработчикам на ограниченном пуле
// воркеров. Контракт упорядоченности: вызывающая сторона публикует событие
// только после фиксации собственной единицы работы, поэтому обработчик
// никогда не видит событие раньше породившего его коммита. События разных
// заказов обрабатываются конкурентно без взаимных гарантий порядка.
type Dispatcher struct {
	table          map[EventType]HandlerFunc
	queue          chan Event
	stopCh         chan struct{}
	workers        int
	maxAttempts    int
	retryBaseDelay time.Duration
	logger         *log.Entry

	// inflight — события, принятые в Dispatch и ещё не дообработанные.
	// Обработчик публикует следующее звено цепи до того, как его
	// собственное событие спишется, поэтому на живой цепи счётчик
	// не обнуляется и drain её не обрывает.
	inflight atomic.Int64

	mu         sync.RWMutex
	started    bool
	closed     bool
	terminated bool
	wg         sync.WaitGroup
}

// New создаёт диспетчер с пустой таблицей обработчиков.
func New(options ...Option) *Dispatcher {
	opts := Options{
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "dispatcher")
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}

	return &Dispatcher{
		table:          make(map[EventType]HandlerFunc),
		queue:          make(chan Event, opts.QueueSize),
		stopCh:         make(chan struct{}),
		workers:        opts.Workers,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		logger:         logger,
	}
}

// Register привязывает обработчик к типу события. Повторная регистрация
// того же типа — ошибка конфигурации. Вызывается до Start.
func (d *Dispatcher) Register(t EventType, handler HandlerFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("dispatcher already started, cannot register %s", t)
	}
	if _, exists := d.table[t]; exists {
		return fmt.Errorf("handler for %s already registered", t)
	}
	d.table[t] = handler
	return nil
}

// Start запускает пул воркеров. ctx ограничивает время работы обработчиков,
// но остановка выполняется через Stop (graceful drain).
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.WithField("workers", d.workers).Info("dispatcher started")
}

// Dispatch ставит событие в очередь доставки, не блокируя вызывающую
// сторону: при переполненной очереди досылка уходит в отдельную горутину,
// чтобы обработчик на том же пуле не встал в deadlock. Во время drain
// события принимаются — цепи саг дорабатывают до конца; отбрасывается
// только то, что пришло после полной остановки.
func (d *Dispatcher) Dispatch(ev Event) {
	d.mu.RLock()
	if d.terminated {
		d.mu.RUnlock()
		d.logger.WithFields(log.Fields{
			"event_type": ev.Type,
			"order_no":   ev.OrderNo,
		}).Warn("dispatcher is stopped, event dropped")
		eventsDelivered.WithLabelValues(string(ev.Type), "dropped").Inc()
		return
	}
	d.inflight.Add(1)
	d.mu.RUnlock()

	select {
	case d.queue <- ev:
		queueDepth.Set(float64(len(d.queue)))
	default:
		eventsDelivered.WithLabelValues(string(ev.Type), "overflow").Inc()
		d.logger.WithFields(log.Fields{
			"event_type": ev.Type,
			"order_no":   ev.OrderNo,
		}).Warn("dispatcher queue is full, enqueueing asynchronously")
		go func() { d.queue <- ev }()
	}
}

// Stop останавливает диспетчер: дожидается, пока опустеют очередь и
// обработчики вместе с порождёнными ими событиями, затем гасит воркеров.
// Очередь не закрывается, поэтому гонка Dispatch/Stop не приводит к панике.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	if started {
		d.waitQuiesce()
	}

	d.mu.Lock()
	d.terminated = true
	d.mu.Unlock()

	close(d.stopCh)
	d.wg.Wait()
	d.sweepQueue()
	d.logger.Info("dispatcher drained and stopped")
}

// waitQuiesce ждёт обнуления inflight с жёстким дедлайном на drain.
func (d *Dispatcher) waitQuiesce() {
	deadline := time.Now().Add(drainTimeout)
	for d.inflight.Load() > 0 {
		if time.Now().After(deadline) {
			d.logger.WithField("inflight", d.inflight.Load()).
				Error("drain deadline exceeded, undelivered events remain")
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// sweepQueue отбрасывает события, проскочившие в очередь после drain.
func (d *Dispatcher) sweepQueue() {
	for {
		select {
		case ev := <-d.queue:
			d.inflight.Add(-1)
			eventsDelivered.WithLabelValues(string(ev.Type), "dropped").Inc()
		default:
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case ev := <-d.queue:
			queueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, ev)
			d.inflight.Add(-1)
		case <-d.stopCh:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	d.mu.RLock()
	handler, ok := d.table[ev.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.WithField("event_type", ev.Type).Error("no handler registered for event")
		eventsDelivered.WithLabelValues(string(ev.Type), "unroutable").Inc()
		return
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		err := handler(ctx, ev)
		if err == nil {
			eventsDelivered.WithLabelValues(string(ev.Type), "ok").Inc()
			handlerDuration.WithLabelValues(string(ev.Type)).Observe(time.Since(start).Seconds())
			return
		}
		lastErr = err

		if attempt >= d.maxAttempts {
			break
		}

		delay := d.retryBackoff(attempt)
		if delay > 0 {
			select {
			case <-ctx.Done():
				// При завершении процесса не начинаем новую попытку.
				d.logger.WithFields(log.Fields{
					"event_type": ev.Type,
					"order_no":   ev.OrderNo,
				}).Warn("shutdown during event redelivery")
				eventsDelivered.WithLabelValues(string(ev.Type), "aborted").Inc()
				return
			case <-time.After(delay):
			}
		}
	}

	d.logger.WithError(lastErr).WithFields(log.Fields{
		"event_type": ev.Type,
		"order_no":   ev.OrderNo,
		"attempts":   d.maxAttempts,
	}).Error("event handler failed after all attempts")
	eventsDelivered.WithLabelValues(string(ev.Type), "failed").Inc()
}

func (d *Dispatcher) retryBackoff(attempt int) time.Duration {
	if d.retryBaseDelay <= 0 {
		return 0
	}
	delay := d.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
