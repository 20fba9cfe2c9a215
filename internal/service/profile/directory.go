package profile

import (
	"sync"

	"github.com/vladislavdragonenkov/rfs/internal/domain"
)

// Directory — in-memory справочник пользователей и карт.
// Реальный сервис профилей — внешний коллаборатор; здесь достаточно
// конфигурируемого реестра с теми же контрактами (как и для тестов).
type Directory struct {
	mu    sync.RWMutex
	users map[string]domain.User
	cards map[string]domain.Card
}

// NewDirectory возвращает пустой справочник.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]domain.User),
		cards: make(map[string]domain.Card),
	}
}

// AddUser регистрирует пользователя.
func (d *Directory) AddUser(user domain.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[user.ID] = user
}

// AddCard регистрирует карту пользователя.
func (d *Directory) AddCard(card domain.Card) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards[card.UserID] = card
}

// GetUser возвращает пользователя или ErrUserNotFound.
func (d *Directory) GetUser(id string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	user, ok := d.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// GetBalance возвращает баланс баллов пользователя.
func (d *Directory) GetBalance(userID string) (int64, error) {
	user, err := d.GetUser(userID)
	if err != nil {
		return 0, err
	}
	return user.BalanceMinor, nil
}

// GetCard возвращает карту пользователя или ErrCardNotFound.
func (d *Directory) GetCard(userID string) (domain.Card, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	card, ok := d.cards[userID]
	if !ok {
		return domain.Card{}, domain.ErrCardNotFound
	}
	return card, nil
}

var (
	_ domain.UserDirectory = (*Directory)(nil)
	_ domain.CardVault     = (*Directory)(nil)
)
