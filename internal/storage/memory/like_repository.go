package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

type likeKey struct {
	userID    string
	productID string
}

// likeRepositoryInMemory — in-memory реализация LikeRepository.
type likeRepositoryInMemory struct {
	mu    sync.Mutex
	facts map[likeKey]struct{}
}

// NewLikeRepository возвращает in-memory репозиторий фактов лайков.
func NewLikeRepository() domain.LikeRepository {
	return &likeRepositoryInMemory{facts: make(map[likeKey]struct{})}
}

// Add фиксирует лайк; дубликат отклоняется с ErrAlreadyLiked.
func (r *likeRepositoryInMemory) Add(userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := likeKey{userID, productID}
	if _, exists := r.facts[key]; exists {
		return domain.ErrAlreadyLiked
	}
	r.facts[key] = struct{}{}
	return nil
}

// Remove удаляет лайк или возвращает ErrLikeNotFound.
func (r *likeRepositoryInMemory) Remove(userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := likeKey{userID, productID}
	if _, exists := r.facts[key]; !exists {
		return domain.ErrLikeNotFound
	}
	delete(r.facts, key)
	return nil
}

// Count возвращает количество фактов по товару.
func (r *likeRepositoryInMemory) Count(productID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for key := range r.facts {
		if key.productID == productID {
			count++
		}
	}
	return count, nil
}

var _ domain.LikeRepository = (*likeRepositoryInMemory)(nil)
