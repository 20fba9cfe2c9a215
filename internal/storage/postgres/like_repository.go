package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type likeRepository struct {
	db *sql.DB
}

// NewLikeRepository создаёт PostgreSQL-реализацию LikeRepository.
func NewLikeRepository(store *Store) domain.LikeRepository {
	return &likeRepository{db: store.DB()}
}

func (r *likeRepository) Add(userID, productID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO likes (user_id, product_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, userID, productID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert like: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyLiked
	}

	return nil
}

func (r *likeRepository) Remove(userID, productID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM likes
		WHERE user_id = $1
		  AND product_id = $2
	`, userID, productID)
	if err != nil {
		return fmt.Errorf("delete like: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrLikeNotFound
	}

	return nil
}

func (r *likeRepository) Count(productID string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var count int64
	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM likes
		WHERE product_id = $1
	`, productID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}

	return count, nil
}

var _ domain.LikeRepository = (*likeRepository)(nil)
