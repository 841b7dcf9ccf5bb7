package counters

import "time"

// Key: уникальный ключ счётчика: абонемент, услуга, начало периода.
type Key struct {
	SubscriptionID int64
	ServiceID      int64
	PeriodStart    time.Time
}

// Counter: сколько проходов уже засчитано в периоде.
// Никогда не обнуляется: новый период = новая строка с нулём.
type Counter struct {
	ID        int64
	Key       Key
	Count     int
	UpdatedAt time.Time
}
