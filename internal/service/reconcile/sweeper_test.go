package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/dispatcher"
	"github.com/vladislavdragonenkov/rfs/internal/service/reconcile"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

// mapGateway отвечает по transaction key из подготовленной карты.
type mapGateway struct {
	results map[string]domain.GatewayResult
	errs    map[string]error
}

func (g *mapGateway) CreatePayment(ctx context.Context, req domain.CreatePaymentRequest) (domain.GatewayResult, error) {
	return domain.GatewayResult{}, nil
}

func (g *mapGateway) GetPaymentInfo(ctx context.Context, transactionKey, userID string) (domain.GatewayResult, error) {
	if err := g.errs[transactionKey]; err != nil {
		return domain.GatewayResult{}, err
	}
	return g.results[transactionKey], nil
}

// eventCapture собирает события завершения, доставленные через bus.
type eventCapture struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (c *eventCapture) handle(ctx context.Context, ev dispatcher.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *eventCapture) all() []dispatcher.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]dispatcher.Event(nil), c.events...)
}

func seedPending(t *testing.T, payments domain.PaymentRepository, transactionKey, orderNo string) {
	t.Helper()
	err := payments.Create(domain.Payment{
		TransactionKey: transactionKey,
		OrderNo:        orderNo,
		UserID:         "user-1",
		AmountMinor:    1000,
		Status:         domain.PaymentStatusPending,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed payment failed: %v", err)
	}
}

func TestSweeper_ProcessOnceRepairs(t *testing.T) {
	payments := memory.NewPaymentRepository()
	seedPending(t, payments, "tx-ok", "order-1")
	seedPending(t, payments, "tx-fail", "order-2")

	gw := &mapGateway{results: map[string]domain.GatewayResult{
		"tx-ok":   {TransactionKey: "tx-ok", Status: domain.PaymentStatusSuccess},
		"tx-fail": {TransactionKey: "tx-fail", Status: domain.PaymentStatusFail, Reason: "insufficient funds"},
	}}

	capture := &eventCapture{}
	bus := dispatcher.New(dispatcher.WithWorkers(1))
	if err := bus.Register(dispatcher.EventPaymentCompleted, capture.handle); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	bus.Start(context.Background())

	sweeper := reconcile.NewSweeper(payments, gw, bus)
	repaired, err := sweeper.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once failed: %v", err)
	}
	if repaired != 2 {
		t.Fatalf("expected 2 repaired payments, got %d", repaired)
	}

	bus.Stop()

	events := capture.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 completion events, got %d", len(events))
	}
	outcomes := make(map[string]bool, len(events))
	for _, ev := range events {
		outcomes[ev.TransactionKey] = ev.Success
	}
	if !outcomes["tx-ok"] {
		t.Fatal("expected success completion for tx-ok")
	}
	if success, ok := outcomes["tx-fail"]; !ok || success {
		t.Fatal("expected failure completion for tx-fail")
	}
}

func TestSweeper_IsolatesItemErrors(t *testing.T) {
	payments := memory.NewPaymentRepository()
	seedPending(t, payments, "tx-broken", "order-1")
	seedPending(t, payments, "tx-ok", "order-2")

	gw := &mapGateway{
		results: map[string]domain.GatewayResult{
			"tx-ok": {TransactionKey: "tx-ok", Status: domain.PaymentStatusSuccess},
		},
		errs: map[string]error{
			"tx-broken": domain.ErrGatewayTemporary,
		},
	}

	bus := dispatcher.New(dispatcher.WithQueueSize(16))
	sweeper := reconcile.NewSweeper(payments, gw, bus)

	repaired, err := sweeper.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once failed: %v", err)
	}
	// Недоступный платёж пропускается, остальные чинятся.
	if repaired != 1 {
		t.Fatalf("expected 1 repaired payment, got %d", repaired)
	}
}

func TestSweeper_PendingStaysUnchanged(t *testing.T) {
	payments := memory.NewPaymentRepository()
	seedPending(t, payments, "tx-1", "order-1")

	gw := &mapGateway{results: map[string]domain.GatewayResult{
		"tx-1": {TransactionKey: "tx-1", Status: domain.PaymentStatusPending},
	}}

	bus := dispatcher.New(dispatcher.WithQueueSize(16))
	sweeper := reconcile.NewSweeper(payments, gw, bus)

	repaired, err := sweeper.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("process once failed: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("expected no repairs for pending payment, got %d", repaired)
	}
}

func TestSweeper_RecheckOne(t *testing.T) {
	payments := memory.NewPaymentRepository()
	seedPending(t, payments, "tx-1", "order-1")

	gw := &mapGateway{results: map[string]domain.GatewayResult{
		"tx-1": {TransactionKey: "tx-1", Status: domain.PaymentStatusSuccess},
	}}

	bus := dispatcher.New(dispatcher.WithQueueSize(16))
	sweeper := reconcile.NewSweeper(payments, gw, bus)

	repaired, err := sweeper.RecheckOne(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("recheck failed: %v", err)
	}
	if !repaired {
		t.Fatal("expected payment to be repaired")
	}

	if _, err := sweeper.RecheckOne(context.Background(), "tx-missing"); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected payment not found, got %v", err)
	}
}

func TestSweeper_RecheckOneTerminalNoop(t *testing.T) {
	payments := memory.NewPaymentRepository()
	seedPending(t, payments, "tx-1", "order-1")
	if err := payments.UpdateStatus("tx-1", domain.PaymentStatusSuccess, ""); err != nil {
		t.Fatalf("update status failed: %v", err)
	}

	gw := &mapGateway{results: map[string]domain.GatewayResult{
		"tx-1": {TransactionKey: "tx-1", Status: domain.PaymentStatusFail},
	}}

	bus := dispatcher.New(dispatcher.WithQueueSize(16))
	sweeper := reconcile.NewSweeper(payments, gw, bus)

	// Конечный платёж не перепроверяется даже принудительно.
	repaired, err := sweeper.RecheckOne(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("recheck failed: %v", err)
	}
	if repaired {
		t.Fatal("expected no-op for terminal payment")
	}
}

func TestSweeper_PauseResume(t *testing.T) {
	payments := memory.NewPaymentRepository()
	bus := dispatcher.New(dispatcher.WithQueueSize(16))
	sweeper := reconcile.NewSweeper(payments, &mapGateway{}, bus)

	if !sweeper.Enabled() {
		t.Fatal("sweeper must start enabled")
	}
	sweeper.Pause()
	if sweeper.Enabled() {
		t.Fatal("expected sweeper paused")
	}
	sweeper.Resume()
	if !sweeper.Enabled() {
		t.Fatal("expected sweeper resumed")
	}
}
