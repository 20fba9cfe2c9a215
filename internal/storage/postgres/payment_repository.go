package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if payment.UpdatedAt.IsZero() {
		payment.UpdatedAt = payment.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			transaction_key, order_no, user_id, amount_minor, card_descriptor,
			status, reason, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		payment.TransactionKey, payment.OrderNo, payment.UserID, payment.AmountMinor,
		payment.CardDescriptor, string(payment.Status), payment.Reason,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		// Уникальность держат и transaction key, и заказ.
		if isUniqueViolation(err) {
			return domain.ErrPaymentDuplicate
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (r *paymentRepository) Get(transactionKey string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	payment, err := r.scanOne(r.db.QueryRowContext(ctx, `
		SELECT transaction_key, order_no, user_id, amount_minor, card_descriptor,
		       status, reason, created_at, updated_at
		FROM payments
		WHERE transaction_key = $1
	`, transactionKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}

	return payment, nil
}

func (r *paymentRepository) ListPending(limit int) ([]domain.Payment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT transaction_key, order_no, user_id, amount_minor, card_descriptor,
		       status, reason, created_at, updated_at
		FROM payments
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0, limit)
	for rows.Next() {
		payment, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return payments, nil
}

func (r *paymentRepository) UpdateStatus(transactionKey string, status domain.PaymentStatus, reason string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2,
		    reason = $3,
		    updated_at = $4
		WHERE transaction_key = $1
		  AND status = 'pending'
	`, transactionKey, string(status), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Строка либо отсутствует, либо уже в конечном статусе.
	current, err := r.Get(transactionKey)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return domain.ErrPaymentDuplicate
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *paymentRepository) scanOne(row rowScanner) (domain.Payment, error) {
	var payment domain.Payment
	var status string
	if err := row.Scan(
		&payment.TransactionKey, &payment.OrderNo, &payment.UserID, &payment.AmountMinor,
		&payment.CardDescriptor, &status, &payment.Reason,
		&payment.CreatedAt, &payment.UpdatedAt,
	); err != nil {
		return domain.Payment{}, err
	}
	payment.Status = domain.PaymentStatus(status)
	return payment, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
