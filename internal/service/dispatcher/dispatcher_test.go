package dispatcher_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
)

func TestDispatcher_Delivery(t *testing.T) {
	bus := dispatcher.New(dispatcher.WithWorkers(2))

	var delivered atomic.Int64
	err := bus.Register(dispatcher.EventOrderCreated, func(ctx context.Context, ev dispatcher.Event) error {
		delivered.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())
	for i := 0; i < 10; i++ {
		bus.Dispatch(dispatcher.NewEvent(dispatcher.EventOrderCreated, "order-1"))
	}
	bus.Stop()

	if got := delivered.Load(); got != 10 {
		t.Fatalf("expected 10 deliveries, got %d", got)
	}
}

func TestDispatcher_RegisterAfterStart(t *testing.T) {
	bus := dispatcher.New()
	bus.Start(context.Background())
	defer bus.Stop()

	err := bus.Register(dispatcher.EventOrderCreated, func(ctx context.Context, ev dispatcher.Event) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error registering after start")
	}
}

func TestDispatcher_DuplicateHandler(t *testing.T) {
	bus := dispatcher.New()
	handler := func(ctx context.Context, ev dispatcher.Event) error { return nil }

	if err := bus.Register(dispatcher.EventOrderCreated, handler); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := bus.Register(dispatcher.EventOrderCreated, handler); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestDispatcher_RetryUntilSuccess(t *testing.T) {
	bus := dispatcher.New(
		dispatcher.WithMaxAttempts(3),
		dispatcher.WithRetryBaseDelay(time.Millisecond),
	)

	var attempts atomic.Int64
	err := bus.Register(dispatcher.EventPaymentAttempt, func(ctx context.Context, ev dispatcher.Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())
	bus.Dispatch(dispatcher.NewEvent(dispatcher.EventPaymentAttempt, "order-1"))
	bus.Stop()

	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestDispatcher_StopDrainsQueue(t *testing.T) {
	bus := dispatcher.New(dispatcher.WithWorkers(1), dispatcher.WithQueueSize(64))

	var mu sync.Mutex
	seen := make([]string, 0, 20)
	err := bus.Register(dispatcher.EventAnalyticsEmit, func(ctx context.Context, ev dispatcher.Event) error {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen = append(seen, ev.OrderNo)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())
	for i := 0; i < 20; i++ {
		bus.Dispatch(dispatcher.NewEvent(dispatcher.EventAnalyticsEmit, "order-1"))
	}
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 20 {
		t.Fatalf("expected queue drained (20 events), got %d", len(seen))
	}
}

func TestDispatcher_StopKeepsSagaChainsAlive(t *testing.T) {
	bus := dispatcher.New(dispatcher.WithWorkers(2))

	var completed atomic.Int64
	err := bus.Register(dispatcher.EventPaymentAttempt, func(ctx context.Context, ev dispatcher.Event) error {
		// Следующее звено публикуется из обработчика уже во время drain.
		time.Sleep(10 * time.Millisecond)
		bus.Dispatch(dispatcher.NewEvent(dispatcher.EventPaymentCompleted, ev.OrderNo))
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	err = bus.Register(dispatcher.EventPaymentCompleted, func(ctx context.Context, ev dispatcher.Event) error {
		completed.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())
	bus.Dispatch(dispatcher.NewEvent(dispatcher.EventPaymentAttempt, "order-1"))
	bus.Stop()

	if got := completed.Load(); got != 1 {
		t.Fatalf("expected the chain to finish during drain, completed handler ran %d times", got)
	}
}

func TestDispatcher_FullQueueDoesNotBlockDispatch(t *testing.T) {
	bus := dispatcher.New(dispatcher.WithWorkers(1), dispatcher.WithQueueSize(1))

	release := make(chan struct{})
	var delivered atomic.Int64
	err := bus.Register(dispatcher.EventOrderCreated, func(ctx context.Context, ev dispatcher.Event) error {
		<-release
		delivered.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())

	// Воркер занят, очередь на одно место: все Dispatch обязаны вернуться
	// сразу, иначе публикация из обработчика встала бы в deadlock.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			bus.Dispatch(dispatcher.NewEvent(dispatcher.EventOrderCreated, "order-1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch blocked on a full queue")
	}

	close(release)
	bus.Stop()

	if got := delivered.Load(); got != 5 {
		t.Fatalf("expected 5 deliveries after release, got %d", got)
	}
}

func TestDispatcher_DropAfterStop(t *testing.T) {
	bus := dispatcher.New()

	var delivered atomic.Int64
	err := bus.Register(dispatcher.EventOrderCreated, func(ctx context.Context, ev dispatcher.Event) error {
		delivered.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	bus.Start(context.Background())
	bus.Stop()

	// После Stop события молча отбрасываются, паники быть не должно.
	bus.Dispatch(dispatcher.NewEvent(dispatcher.EventOrderCreated, "order-1"))

	if got := delivered.Load(); got != 0 {
		t.Fatalf("expected no deliveries after stop, got %d", got)
	}
}
