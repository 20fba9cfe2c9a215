package gateway_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/gateway"
)

func newTestBreaker(cooldown time.Duration) *gateway.Breaker {
	return gateway.NewBreaker(gateway.BreakerConfig{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		Cooldown:             cooldown,
		HalfOpenMaxCalls:     1,
	}, nil)
}

func TestBreaker_TripsOnFailureRate(t *testing.T) {
	b := newTestBreaker(time.Minute)

	// Ниже минимума вызовов breaker не оценивает failure rate.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.State() != gateway.StateClosed {
		t.Fatalf("expected closed below minimum calls, got %v", b.State())
	}

	b.RecordFailure()
	if b.State() != gateway.StateOpen {
		t.Fatalf("expected open after failure rate exceeded, got %v", b.State())
	}

	if err := b.Allow(); !errors.Is(err, domain.ErrPaymentUnavailable) {
		t.Fatalf("expected unavailable while open, got %v", err)
	}
}

func TestBreaker_MixedCallsBelowThreshold(t *testing.T) {
	b := newTestBreaker(time.Minute)

	for i := 0; i < 7; i++ {
		b.RecordSuccess()
	}
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}

	if b.State() != gateway.StateClosed {
		t.Fatalf("expected closed at 30%% failures, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected call allowed, got %v", err)
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != gateway.StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// После cooldown пропускается пробный вызов.
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call allowed after cooldown, got %v", err)
	}
	if b.State() != gateway.StateHalfOpen {
		t.Fatalf("expected half-open, got %v", b.State())
	}

	// Бюджет пробных вызовов исчерпан, остальные отсекаются.
	if err := b.Allow(); !errors.Is(err, domain.ErrPaymentUnavailable) {
		t.Fatalf("expected unavailable beyond trial limit, got %v", err)
	}

	b.RecordSuccess()
	if b.State() != gateway.StateClosed {
		t.Fatalf("expected closed after trial success, got %v", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected call allowed after recovery, got %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newTestBreaker(10 * time.Millisecond)

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	time.Sleep(20 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call allowed, got %v", err)
	}

	b.RecordFailure()
	if b.State() != gateway.StateOpen {
		t.Fatalf("expected reopened after trial failure, got %v", b.State())
	}
	if err := b.Allow(); !errors.Is(err, domain.ErrPaymentUnavailable) {
		t.Fatalf("expected unavailable while open, got %v", err)
	}
}
