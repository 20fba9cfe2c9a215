package gateway

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

// State описывает состояние circuit breaker.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

var breakerState = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "rfs_gateway_breaker_state",
	Help: "Payment gateway circuit breaker state (0=closed, 1=half-open, 2=open).",
})

// BreakerConfig задаёт параметры circuit breaker.
type BreakerConfig struct {
	// WindowSize — размер скользящего окна последних вызовов.
	WindowSize int
	// MinimumCalls — минимум вызовов в окне до оценки failure rate.
	MinimumCalls int
	// FailureRateThreshold — доля ошибок в окне, открывающая breaker.
	FailureRateThreshold float64
	// Cooldown — пауза в открытом состоянии до пробного периода.
	Cooldown time.Duration
	// HalfOpenMaxCalls — число пробных вызовов в half-open состоянии.
	HalfOpenMaxCalls int
}

// DefaultBreakerConfig возвращает конфигурацию по умолчанию.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		Cooldown:             30 * time.Second,
		HalfOpenMaxCalls:     2,
	}
}

// Breaker — circuit breaker со скользящим окном по количеству вызовов.
// В открытом состоянии вызовы отсекаются сразу, без обращения к сети;
// после cooldown breaker пропускает ограниченное число пробных вызовов.
type Breaker struct {
	cfg    BreakerConfig
	logger *log.Entry

	mu            sync.Mutex
	state         State
	window        []bool // true = ошибка
	windowPos     int
	windowFilled  int
	openedAt      time.Time
	halfOpenCalls int
	now           func() time.Time
}

// NewBreaker создаёт breaker в закрытом состоянии.
func NewBreaker(cfg BreakerConfig, logger *log.Entry) *Breaker {
	if logger == nil {
		logger = log.WithField("component", "gateway-breaker")
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultBreakerConfig().WindowSize
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = 1
	}
	if cfg.FailureRateThreshold <= 0 || cfg.FailureRateThreshold > 1 {
		cfg.FailureRateThreshold = DefaultBreakerConfig().FailureRateThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Breaker{
		cfg:    cfg,
		logger: logger,
		state:  StateClosed,
		window: make([]bool, cfg.WindowSize),
		now:    time.Now,
	}
}

// Allow сообщает, можно ли выполнять вызов. В открытом состоянии
// возвращает ErrPaymentUnavailable без обращения к сети.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return domain.ErrPaymentUnavailable
		}
		b.transition(StateHalfOpen)
		b.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return domain.ErrPaymentUnavailable
		}
		b.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// RecordSuccess фиксирует успешный вызов.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		// Пробный период пройден, возвращаемся в рабочее состояние.
		b.transition(StateClosed)
		b.resetWindow()
		return
	}
	b.record(false)
}

// RecordFailure фиксирует неуспешный вызов.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.trip()
		return
	}

	b.record(true)
	if b.windowFilled < b.cfg.MinimumCalls {
		return
	}
	if b.failureRate() >= b.cfg.FailureRateThreshold {
		b.trip()
	}
}

// State возвращает текущее состояние breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) record(failed bool) {
	b.window[b.windowPos] = failed
	b.windowPos = (b.windowPos + 1) % len(b.window)
	if b.windowFilled < len(b.window) {
		b.windowFilled++
	}
}

func (b *Breaker) failureRate() float64 {
	if b.windowFilled == 0 {
		return 0
	}
	failures := 0
	for i := 0; i < b.windowFilled; i++ {
		if b.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(b.windowFilled)
}

func (b *Breaker) trip() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.resetWindow()
}

func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.windowPos = 0
	b.windowFilled = 0
	b.halfOpenCalls = 0
}

func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.logger.WithFields(log.Fields{
		"from": b.state.String(),
		"to":   next.String(),
	}).Warn("circuit breaker state changed")
	b.state = next
	breakerState.Set(float64(next))
}
