package counter_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/counter"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

func TestController_RowLock(t *testing.T) {
	ctrl := counter.NewController(memory.NewCounterRepository(), nil)

	result, err := ctrl.Apply(domain.CounterKindStock, "sku-1", 10, counter.StrategyRowLock)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Value != 10 || result.Clamped {
		t.Fatalf("expected (10,false), got %+v", result)
	}

	result, err = ctrl.Apply(domain.CounterKindStock, "sku-1", -12, counter.StrategyRowLock)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Value != 0 || !result.Clamped {
		t.Fatalf("expected clamp at zero, got %+v", result)
	}
}

func TestController_Optimistic(t *testing.T) {
	ctrl := counter.NewController(memory.NewCounterRepository(), nil)

	result, err := ctrl.Apply(domain.CounterKindLike, "sku-1", 1, counter.StrategyOptimistic)
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if result.Value != 1 {
		t.Fatalf("expected value 1, got %d", result.Value)
	}
}

func TestController_Optimistic_Concurrent(t *testing.T) {
	ctrl := counter.NewController(memory.NewCounterRepository(), nil)

	// Конкуренция ниже retry-бюджета: все обновления должны пройти.
	const workers = 4
	const perWorker = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				for {
					_, err := ctrl.Apply(domain.CounterKindLike, "sku-1", 1, counter.StrategyOptimistic)
					if err == nil {
						break
					}
					if !errors.Is(err, domain.ErrCounterVersionConflict) {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}
		}()
	}
	wg.Wait()

	value, err := ctrl.Value(domain.CounterKindLike, "sku-1")
	if err != nil {
		t.Fatalf("value failed: %v", err)
	}
	if value != workers*perWorker {
		t.Fatalf("expected %d, got %d", workers*perWorker, value)
	}
}

// conflictingRepo всегда отвечает конфликтом версий на CAS.
type conflictingRepo struct {
	domain.CounterRepository
	calls int
}

func (r *conflictingRepo) CompareAndSwap(domain.Counter, int64) error {
	r.calls++
	return domain.ErrCounterVersionConflict
}

func TestController_Optimistic_ExhaustedRetries(t *testing.T) {
	repo := &conflictingRepo{CounterRepository: memory.NewCounterRepository()}
	ctrl := counter.NewController(repo, nil)

	_, err := ctrl.Apply(domain.CounterKindLike, "sku-1", 1, counter.StrategyOptimistic)
	if !errors.Is(err, domain.ErrCounterVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if repo.calls < 2 {
		t.Fatalf("expected retries before giving up, got %d attempts", repo.calls)
	}
}

func TestController_UnknownStrategy(t *testing.T) {
	ctrl := counter.NewController(memory.NewCounterRepository(), nil)

	if _, err := ctrl.Apply(domain.CounterKindLike, "sku-1", 1, counter.Strategy("bogus")); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}
