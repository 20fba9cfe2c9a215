package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/outbox"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

// capturePublisher запоминает опубликованные события; может отвечать ошибкой.
type capturePublisher struct {
	mu        sync.Mutex
	published []domain.OutboxMessage
	err       error
}

func (p *capturePublisher) Publish(event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, event)
	return nil
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

type outboxStore interface {
	domain.OutboxRepository
	AllPending() []domain.OutboxMessage
}

func enqueue(t *testing.T, repo domain.OutboxRepository, eventType string) domain.OutboxMessage {
	t.Helper()
	msg, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     eventType,
		Payload:       []byte(`{"order_no":"order-1"}`),
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return msg
}

func TestWorker_PublishesAndMarksSent(t *testing.T) {
	var repo outboxStore = memory.NewOutboxRepository()
	enqueue(t, repo, "OrderAnalytics")
	enqueue(t, repo, "OrderAnalytics")

	publisher := &capturePublisher{}
	worker := outbox.NewWorker(repo, publisher, outbox.WithRetryBaseDelay(time.Millisecond))

	worker.ProcessOnce(context.Background())

	if got := publisher.count(); got != 2 {
		t.Fatalf("expected 2 published events, got %d", got)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected empty backlog, got %d pending", len(pending))
	}
}

func TestWorker_FailedPublishGoesToDLQ(t *testing.T) {
	var repo outboxStore = memory.NewOutboxRepository()
	msg := enqueue(t, repo, "OrderAnalytics")

	publisher := &capturePublisher{err: errors.New("broker down")}
	dlq := &capturePublisher{}
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithDLQPublisher(dlq),
		outbox.WithMaxAttempts(2),
		outbox.WithRetryBaseDelay(time.Millisecond),
	)

	worker.ProcessOnce(context.Background())

	if dlq.count() != 1 {
		t.Fatalf("expected 1 DLQ event, got %d", dlq.count())
	}
	dlq.mu.Lock()
	envelope := dlq.published[0]
	dlq.mu.Unlock()
	if envelope.ID != msg.ID {
		t.Fatalf("expected DLQ envelope to keep outbox id %s, got %s", msg.ID, envelope.ID)
	}

	// Запись ушла в failed, повторный проход её не трогает.
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected no pending records, got %d", len(pending))
	}
	worker.ProcessOnce(context.Background())
	if dlq.count() != 1 {
		t.Fatalf("expected failed record to stay out of rotation, got %d DLQ events", dlq.count())
	}
}

func TestWorker_RetriesBeforeGivingUp(t *testing.T) {
	var repo outboxStore = memory.NewOutboxRepository()
	enqueue(t, repo, "OrderAnalytics")

	attempts := 0
	publisher := &flakyPublisher{failFirst: 2, attempts: &attempts}
	worker := outbox.NewWorker(repo, publisher,
		outbox.WithMaxAttempts(3),
		outbox.WithRetryBaseDelay(time.Millisecond),
	)

	worker.ProcessOnce(context.Background())

	if attempts != 3 {
		t.Fatalf("expected 3 publish attempts, got %d", attempts)
	}
	if pending := repo.AllPending(); len(pending) != 0 {
		t.Fatalf("expected record sent after retries, got %d pending", len(pending))
	}
}

// flakyPublisher отказывает первым failFirst вызовам.
type flakyPublisher struct {
	failFirst int
	attempts  *int
}

func (p *flakyPublisher) Publish(event domain.OutboxMessage) error {
	*p.attempts++
	if *p.attempts <= p.failFirst {
		return errors.New("transient broker error")
	}
	return nil
}

func TestWorker_EmptyBacklogIsNoop(t *testing.T) {
	repo := memory.NewOutboxRepository()
	publisher := &capturePublisher{}
	worker := outbox.NewWorker(repo, publisher)

	worker.ProcessOnce(context.Background())

	if publisher.count() != 0 {
		t.Fatalf("expected no publishes on empty backlog, got %d", publisher.count())
	}
}
