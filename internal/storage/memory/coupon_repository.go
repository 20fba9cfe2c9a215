package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

// couponRepositoryInMemory — in-memory реализация CouponRepository.
// Общий мьютекс играет роль блокировки строки: MarkUsed сериализуется.
type couponRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Coupon
}

// NewCouponRepository возвращает in-memory репозиторий купонов.
func NewCouponRepository() *couponRepositoryInMemory {
	return &couponRepositoryInMemory{items: make(map[string]domain.Coupon)}
}

// Seed добавляет купон (для тестов и локальной разработки).
func (r *couponRepositoryInMemory) Seed(coupon domain.Coupon) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[coupon.CouponNo] = coupon
}

// Get возвращает купон или ErrCouponNotFound.
func (r *couponRepositoryInMemory) Get(couponNo string) (domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.items[couponNo]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

// MarkUsed помечает купон использованным ровно один раз.
// Чужой купон неотличим от отсутствующего — ErrCouponNotFound.
func (r *couponRepositoryInMemory) MarkUsed(userID, couponNo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	coupon, ok := r.items[couponNo]
	if !ok || coupon.UserID != userID {
		return domain.ErrCouponNotFound
	}
	if coupon.Used {
		return domain.ErrCouponAlreadyUsed
	}

	coupon.Used = true
	coupon.UpdatedAt = time.Now().UTC()
	r.items[couponNo] = coupon
	return nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
