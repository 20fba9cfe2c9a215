package domain

import "time"

// CounterKind разделяет пространства счётчиков.
type CounterKind string

const (
	// CounterKindLike — денормализованное количество лайков товара.
	CounterKindLike CounterKind = "like"
	// CounterKindStock — остаток товара на складе.
	CounterKindStock CounterKind = "stock"
)

// Counter — общий числовой агрегат, обновляемый многими акторами.
// Значение всегда неотрицательное; декремент ниже нуля обрезается.
// Version используется оптимистичной стратегией обновления.
type Counter struct {
	Kind      CounterKind
	EntityID  string
	Value     int64
	Version   int64
	UpdatedAt time.Time
}

// ClampDelta применяет дельту к значению с нижней границей ноль.
// Возвращает новое значение и признак того, что произошла обрезка.
func ClampDelta(value, delta int64) (int64, bool) {
	next := value + delta
	if next < 0 {
		return 0, true
	}
	return next, false
}
