package counter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

const defaultCASRetries = 5

var (
	counterConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfs_counter_cas_conflicts_total",
		Help: "Total number of optimistic counter update conflicts grouped by kind.",
	}, []string{"kind"})
	counterClamped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rfs_counter_clamped_total",
		Help: "Total number of counter updates clamped at the zero floor grouped by kind.",
	}, []string{"kind"})
)

// Strategy выбирает дисциплину обновления общего счётчика.
type Strategy string

const (
	// StrategyRowLock — эксклюзивная блокировка строки: обновления
	// сериализуются хранилищем, retry вызывающей стороне не нужен.
	StrategyRowLock Strategy = "row_lock"
	// StrategyOptimistic — версия + compare-and-swap: выше пропускная
	// способность при низкой конкуренции, конфликт виден вызывающему.
	StrategyOptimistic Strategy = "optimistic"
)

// Result — итог применения дельты.
type Result struct {
	Value   int64
	Clamped bool
}

// Controller применяет дельты к общим числовым агрегатам по выбранной
// стратегии. Обе стратегии коммутативно-безопасны: конкурирующие +1/-1
// сходятся к одному значению независимо от порядка, пол — ноль.
type Controller struct {
	repo       domain.CounterRepository
	maxRetries int
	logger     *log.Entry
}

// NewController создаёт контроллер над репозиторием счётчиков.
func NewController(repo domain.CounterRepository, logger *log.Entry) *Controller {
	if logger == nil {
		logger = log.WithField("component", "counter")
	}
	return &Controller{
		repo:       repo,
		maxRetries: defaultCASRetries,
		logger:     logger,
	}
}

// Apply применяет дельту к счётчику. Для StrategyOptimistic при исчерпании
// retry возвращается ErrCounterVersionConflict — конфликт решает вызывающий.
func (c *Controller) Apply(kind domain.CounterKind, entityID string, delta int64, strategy Strategy) (Result, error) {
	switch strategy {
	case StrategyRowLock:
		return c.applyLocked(kind, entityID, delta)
	case StrategyOptimistic:
		return c.applyOptimistic(kind, entityID, delta)
	default:
		return Result{}, fmt.Errorf("unknown counter strategy: %s", strategy)
	}
}

func (c *Controller) applyLocked(kind domain.CounterKind, entityID string, delta int64) (Result, error) {
	value, clamped, err := c.repo.ApplyLocked(kind, entityID, delta)
	if err != nil {
		return Result{}, fmt.Errorf("apply locked %s/%s: %w", kind, entityID, err)
	}
	if clamped {
		c.reportClamp(kind, entityID, delta)
	}
	return Result{Value: value, Clamped: clamped}, nil
}

func (c *Controller) applyOptimistic(kind domain.CounterKind, entityID string, delta int64) (Result, error) {
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		current, err := c.repo.Get(kind, entityID)
		if err != nil {
			return Result{}, fmt.Errorf("load counter %s/%s: %w", kind, entityID, err)
		}

		next, clamped := domain.ClampDelta(current.Value, delta)
		if err := c.repo.CompareAndSwap(current, next); err != nil {
			if domain.IsVersionConflict(err) {
				counterConflicts.WithLabelValues(string(kind)).Inc()
				continue
			}
			return Result{}, fmt.Errorf("cas counter %s/%s: %w", kind, entityID, err)
		}

		if clamped {
			c.reportClamp(kind, entityID, delta)
		}
		return Result{Value: next, Clamped: clamped}, nil
	}

	return Result{}, domain.ErrCounterVersionConflict
}

// Value возвращает текущее значение счётчика без применения дельты.
func (c *Controller) Value(kind domain.CounterKind, entityID string) (int64, error) {
	current, err := c.repo.Get(kind, entityID)
	if err != nil {
		return 0, fmt.Errorf("load counter %s/%s: %w", kind, entityID, err)
	}
	return current.Value, nil
}

func (c *Controller) reportClamp(kind domain.CounterKind, entityID string, delta int64) {
	counterClamped.WithLabelValues(string(kind)).Inc()
	c.logger.WithFields(log.Fields{
		"kind":      kind,
		"entity_id": entityID,
		"delta":     delta,
	}).Error("counter decrement clamped at zero")
}
