package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type counterRepository struct {
	db *sql.DB
}

// NewCounterRepository создаёт PostgreSQL-реализацию CounterRepository.
func NewCounterRepository(store *Store) domain.CounterRepository {
	return &counterRepository{db: store.DB()}
}

func (r *counterRepository) Get(kind domain.CounterKind, entityID string) (domain.Counter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	counter := domain.Counter{Kind: kind, EntityID: entityID}
	err := r.db.QueryRowContext(ctx, `
		SELECT value, version, updated_at
		FROM counters
		WHERE kind = $1
		  AND entity_id = $2
	`, string(kind), entityID).Scan(&counter.Value, &counter.Version, &counter.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Счётчик создаётся лениво со значением ноль.
			return counter, nil
		}
		return domain.Counter{}, fmt.Errorf("select counter: %w", err)
	}

	return counter, nil
}

// ApplyLocked применяет дельту под FOR UPDATE: конкурирующие обновления
// одной строки сериализуются базой.
func (r *counterRepository) ApplyLocked(kind domain.CounterKind, entityID string, delta int64) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.ensureRow(ctx, tx, kind, entityID); err != nil {
		return 0, false, err
	}

	var value int64
	if err = tx.QueryRowContext(ctx, `
		SELECT value
		FROM counters
		WHERE kind = $1
		  AND entity_id = $2
		FOR UPDATE
	`, string(kind), entityID).Scan(&value); err != nil {
		return 0, false, fmt.Errorf("lock counter: %w", err)
	}

	next, clamped := domain.ClampDelta(value, delta)
	if _, err = tx.ExecContext(ctx, `
		UPDATE counters
		SET value = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE kind = $1
		  AND entity_id = $2
	`, string(kind), entityID, next, time.Now().UTC()); err != nil {
		return 0, false, fmt.Errorf("update counter: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit counter update: %w", err)
	}

	return next, clamped, nil
}

// CompareAndSwap записывает новое значение при совпадении версии.
func (r *counterRepository) CompareAndSwap(counter domain.Counter, newValue int64) error {
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

	if err = r.ensureRow(ctx, tx, counter.Kind, counter.EntityID); err != nil {
		return err
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		UPDATE counters
		SET value = $3,
		    version = version + 1,
		    updated_at = $4
		WHERE kind = $1
		  AND entity_id = $2
		  AND version = $5
	`, string(counter.Kind), counter.EntityID, newValue, time.Now().UTC(), counter.Version)
	if err != nil {
		return fmt.Errorf("cas counter: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		err = domain.ErrCounterVersionConflict
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit counter cas: %w", err)
	}

	return nil
}

func (r *counterRepository) ensureRow(ctx context.Context, tx *sql.Tx, kind domain.CounterKind, entityID string) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO counters (kind, entity_id, value, version, updated_at)
		VALUES ($1, $2, 0, 0, $3)
		ON CONFLICT (kind, entity_id) DO NOTHING
	`, string(kind), entityID, time.Now().UTC()); err != nil {
		return fmt.Errorf("ensure counter row: %w", err)
	}
	return nil
}

var _ domain.CounterRepository = (*counterRepository)(nil)
