package like

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
	"github.com/vladislavdragonenkov/rfs/internal/service/counter"
)

// Service ведёт лайки: факт (set membership) плюс денормализованный счётчик.
// Повторный лайк того же товара — различимый no-op, а не двойной учёт.
type Service struct {
	likes    domain.LikeRepository
	counters *counter.Controller
	strategy counter.Strategy
	logger   *log.Entry
}

// NewService создаёт сервис лайков. strategy выбирает дисциплину обновления
// счётчика для этого call site.
func NewService(likes domain.LikeRepository, counters *counter.Controller, strategy counter.Strategy, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "like")
	}
	return &Service{
		likes:    likes,
		counters: counters,
		strategy: strategy,
		logger:   logger,
	}
}

// Like фиксирует лайк и инкрементирует счётчик.
// Дубликат возвращает ErrAlreadyLiked, счётчик не трогается.
// Если счётчик обновить не удалось, факт откатывается: membership и
// агрегат не должны расходиться из-за наполовину применённой операции.
func (s *Service) Like(userID, productID string) (int64, error) {
	if err := s.likes.Add(userID, productID); err != nil {
		return 0, err
	}

	result, err := s.counters.Apply(domain.CounterKindLike, productID, 1, s.strategy)
	if err != nil {
		s.rollback(userID, productID, s.likes.Remove)
		return 0, fmt.Errorf("increment like count for %s: %w", productID, err)
	}
	return result.Value, nil
}

// Unlike удаляет лайк и декрементирует счётчик (с полом ноль).
// Отсутствующий лайк возвращает ErrLikeNotFound. Сбой счётчика
// возвращает факт на место.
func (s *Service) Unlike(userID, productID string) (int64, error) {
	if err := s.likes.Remove(userID, productID); err != nil {
		return 0, err
	}

	result, err := s.counters.Apply(domain.CounterKindLike, productID, -1, s.strategy)
	if err != nil {
		s.rollback(userID, productID, s.likes.Add)
		return 0, fmt.Errorf("decrement like count for %s: %w", productID, err)
	}
	return result.Value, nil
}

// rollback компенсирует изменение membership после сбоя счётчика.
func (s *Service) rollback(userID, productID string, undo func(userID, productID string) error) {
	if err := undo(userID, productID); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"user_id":    userID,
			"product_id": productID,
		}).Error("like rollback failed, membership and counter diverge")
	}
}

// Count возвращает текущее значение денормализованного счётчика.
func (s *Service) Count(productID string) (int64, error) {
	return s.counters.Value(domain.CounterKindLike, productID)
}
