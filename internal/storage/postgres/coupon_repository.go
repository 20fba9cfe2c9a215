package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository создаёт PostgreSQL-реализацию CouponRepository.
func NewCouponRepository(store *Store) domain.CouponRepository {
	return &couponRepository{db: store.DB()}
}

func (r *couponRepository) Get(couponNo string) (domain.Coupon, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var coupon domain.Coupon
	var discountType string

	err := r.db.QueryRowContext(ctx, `
		SELECT coupon_no, user_id, discount_type, rate, amount_minor, cap_minor, used, created_at, updated_at
		FROM coupons
		WHERE coupon_no = $1
	`, couponNo).Scan(
		&coupon.CouponNo, &coupon.UserID, &discountType, &coupon.Rate,
		&coupon.AmountMinor, &coupon.CapMinor, &coupon.Used, &coupon.CreatedAt, &coupon.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coupon{}, domain.ErrCouponNotFound
		}
		return domain.Coupon{}, fmt.Errorf("select coupon: %w", err)
	}
	coupon.Type = domain.DiscountType(discountType)

	return coupon, nil
}

// MarkUsed гасит купон под эксклюзивной блокировкой строки: из двух
// конкурирующих заказов купон достаётся ровно одному.
func (r *couponRepository) MarkUsed(userID, couponNo string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var used bool
	err = tx.QueryRowContext(ctx, `
		SELECT used
		FROM coupons
		WHERE coupon_no = $1
		  AND user_id = $2
		FOR UPDATE
	`, couponNo, userID).Scan(&used)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = domain.ErrCouponNotFound
			return err
		}
		return fmt.Errorf("lock coupon: %w", err)
	}
	if used {
		err = domain.ErrCouponAlreadyUsed
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE coupons
		SET used = TRUE,
		    updated_at = $3
		WHERE coupon_no = $1
		  AND user_id = $2
	`, couponNo, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark coupon used: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit mark coupon used: %w", err)
	}

	return nil
}

var _ domain.CouponRepository = (*couponRepository)(nil)
