package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type counterKey struct {
	kind     domain.CounterKind
	entityID string
}

// counterRepositoryInMemory — in-memory реализация CounterRepository.
// Мьютекс сериализует ApplyLocked (аналог row lock) и защищает CAS.
type counterRepositoryInMemory struct {
	mu    sync.Mutex
	items map[counterKey]domain.Counter
}

// NewCounterRepository возвращает in-memory репозиторий счётчиков.
func NewCounterRepository() domain.CounterRepository {
	return &counterRepositoryInMemory{items: make(map[counterKey]domain.Counter)}
}

// Get возвращает счётчик, лениво создавая запись с нулём.
func (r *counterRepositoryInMemory) Get(kind domain.CounterKind, entityID string) (domain.Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensure(kind, entityID), nil
}

// ApplyLocked применяет дельту под блокировкой, обрезая значение на нуле.
func (r *counterRepositoryInMemory) ApplyLocked(kind domain.CounterKind, entityID string, delta int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counter := r.ensure(kind, entityID)
	next, clamped := domain.ClampDelta(counter.Value, delta)
	counter.Value = next
	counter.Version++
	counter.UpdatedAt = time.Now().UTC()
	r.items[counterKey{kind, entityID}] = counter
	return next, clamped, nil
}

// CompareAndSwap записывает новое значение при совпадении версии.
func (r *counterRepositoryInMemory) CompareAndSwap(counter domain.Counter, newValue int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := counterKey{counter.Kind, counter.EntityID}
	current := r.ensure(counter.Kind, counter.EntityID)
	if current.Version != counter.Version {
		return domain.ErrCounterVersionConflict
	}
	if newValue < 0 {
		newValue = 0
	}

	current.Value = newValue
	current.Version++
	current.UpdatedAt = time.Now().UTC()
	r.items[key] = current
	return nil
}

func (r *counterRepositoryInMemory) ensure(kind domain.CounterKind, entityID string) domain.Counter {
	key := counterKey{kind, entityID}
	counter, ok := r.items[key]
	if !ok {
		counter = domain.Counter{
			Kind:      kind,
			EntityID:  entityID,
			Value:     0,
			Version:   0,
			UpdatedAt: time.Now().UTC(),
		}
		r.items[key] = counter
	}
	return counter
}

var _ domain.CounterRepository = (*counterRepositoryInMemory)(nil)
