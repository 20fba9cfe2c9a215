package domain

// User — минимальный профиль покупателя, достаточный для валидации заказа.
type User struct {
	ID           string
	Name         string
	BalanceMinor int64
}

// Card — сохранённый платёжный инструмент пользователя.
// Descriptor — маскированное описание карты, как его хранит шлюз.
type Card struct {
	UserID     string
	Descriptor string
}
