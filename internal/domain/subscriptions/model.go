package subscriptions

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

type Subscription struct {
	ID             int64
	CustomerID     int64
	PlanID         int64
	AccessCode     string // 8 символов A-Z0-9
	NFCCode        string // 32 hex
	ActivationDate time.Time
	ExpirationDate time.Time // activation + duration_days, дальше не меняется
	Status         Status
	LastAccessAt   *time.Time
	CreatedAt      time.Time
}

// Usable: активен и срок не истёк на дату today (дата как полночь UTC).
func (s *Subscription) Usable(today time.Time) bool {
	return s.Status == StatusActive && !today.After(s.ExpirationDate)
}

// DaysLeft: сколько дней осталось до окончания, не меньше нуля.
func (s *Subscription) DaysLeft(today time.Time) int {
	d := int(s.ExpirationDate.Sub(today).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

type Plate struct {
	SubscriptionID int64
	Plate          string
	Active         bool
	AddedAt        time.Time
}

// NormalizePlate приводит номер к виду, в котором он хранится.
func NormalizePlate(p string) string {
	return strings.ToUpper(strings.TrimSpace(p))
}
