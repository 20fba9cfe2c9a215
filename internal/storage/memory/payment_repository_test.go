package memory_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/storage/memory"
)

func newPayment(key, orderNo string) domain.Payment {
	return domain.Payment{
		TransactionKey: key,
		OrderNo:        orderNo,
		UserID:         "user-1",
		AmountMinor:    2000,
		Status:         domain.PaymentStatusPending,
	}
}

func TestPaymentRepository_CreateGet(t *testing.T) {
	repo := memory.NewPaymentRepository()

	if err := repo.Create(newPayment("tx-1", "order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	payment, err := repo.Get("tx-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if payment.OrderNo != "order-1" {
		t.Fatalf("expected order-1, got %s", payment.OrderNo)
	}
}

func TestPaymentRepository_DuplicateKey(t *testing.T) {
	repo := memory.NewPaymentRepository()

	if err := repo.Create(newPayment("tx-1", "order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(newPayment("tx-1", "order-2")); !errors.Is(err, domain.ErrPaymentDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestPaymentRepository_DuplicateOrder(t *testing.T) {
	repo := memory.NewPaymentRepository()

	if err := repo.Create(newPayment("tx-1", "order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	// Один заказ — одна строка платежа, даже с другим ключом.
	if err := repo.Create(newPayment("tx-2", "order-1")); !errors.Is(err, domain.ErrPaymentDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestPaymentRepository_UpdateStatus(t *testing.T) {
	repo := memory.NewPaymentRepository()
	if err := repo.Create(newPayment("tx-1", "order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := repo.UpdateStatus("tx-1", domain.PaymentStatusSuccess, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Повтор того же конечного статуса — no-op.
	if err := repo.UpdateStatus("tx-1", domain.PaymentStatusSuccess, ""); err != nil {
		t.Fatalf("repeat update failed: %v", err)
	}

	// Переход между конечными статусами запрещён.
	if err := repo.UpdateStatus("tx-1", domain.PaymentStatusFail, "late fail"); !errors.Is(err, domain.ErrPaymentDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestPaymentRepository_ListPending(t *testing.T) {
	repo := memory.NewPaymentRepository()
	if err := repo.Create(newPayment("tx-1", "order-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(newPayment("tx-2", "order-2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.UpdateStatus("tx-2", domain.PaymentStatusFail, "declined"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	pending, err := repo.ListPending(10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(pending) != 1 || pending[0].TransactionKey != "tx-1" {
		t.Fatalf("expected only tx-1 pending, got %v", pending)
	}
}
