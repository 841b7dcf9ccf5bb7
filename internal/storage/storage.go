// Package storage описывает транзакционное хранилище абонементов,
// счётчиков и журнала проходов. Реализации: postgres (pgx) и sqlite.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
)

var (
	ErrNotFound       = errors.New("storage: not found")
	ErrDuplicate      = errors.New("storage: duplicate key")
	ErrQuotaExhausted = errors.New("storage: counter limit reached")
)

type PlanRepo interface {
	Plan(ctx context.Context, id int64) (*plans.Plan, error)
	CreatePlan(ctx context.Context, p *plans.Plan) (int64, error)
	ListPlans(ctx context.Context) ([]plans.Plan, error)
}

type SubscriptionRepo interface {
	Subscription(ctx context.Context, id int64) (*subscriptions.Subscription, error)
	SubscriptionByAccessCode(ctx context.Context, code string) (*subscriptions.Subscription, error)
	SubscriptionByNFCCode(ctx context.Context, code string) (*subscriptions.Subscription, error)
	AccessCodeTaken(ctx context.Context, code string) (bool, error)
	NFCCodeTaken(ctx context.Context, code string) (bool, error)
	CreateSubscription(ctx context.Context, s *subscriptions.Subscription) (int64, error)
	SetStatus(ctx context.Context, id int64, st subscriptions.Status) error
	TouchLastAccess(ctx context.Context, id int64, at time.Time) error
	// ExpireOverdue переводит active с истёкшим сроком в expired.
	ExpireOverdue(ctx context.Context, today time.Time) (int64, error)
	// ExpiringBetween: активные, у которых срок заканчивается в [from, to].
	ExpiringBetween(ctx context.Context, from, to time.Time) ([]subscriptions.Subscription, error)
	CountActive(ctx context.Context, today time.Time) (int, error)
}

type PlateRepo interface {
	AddPlate(ctx context.Context, subscriptionID int64, plate string) error
	SetPlateActive(ctx context.Context, subscriptionID int64, plate string, active bool) error
	HasActivePlate(ctx context.Context, subscriptionID int64, plate string) (bool, error)
	Plates(ctx context.Context, subscriptionID int64) ([]subscriptions.Plate, error)
}

type CounterRepo interface {
	// LockCounter создаёт счётчик с нулём, если его нет, и блокирует строку до конца транзакции.
	LockCounter(ctx context.Context, key counters.Key) (counters.Counter, error)
	// PeekCounter читает без создания; отсутствующий счётчик = 0.
	PeekCounter(ctx context.Context, key counters.Key) (counters.Counter, error)
	// IncrementCounter увеличивает на 1, только если значение меньше limit.
	IncrementCounter(ctx context.Context, key counters.Key, limit int) (int, error)
	// TotalAccesses: сумма по всем периодам абонемента для услуги.
	TotalAccesses(ctx context.Context, subscriptionID, serviceID int64) (int, error)
}

type LedgerRepo interface {
	AppendEvent(ctx context.Context, e *ledger.Event) (int64, error)
	// CountAuthorized: разрешённые проходы в интервале [from, to).
	CountAuthorized(ctx context.Context, subscriptionID, serviceID int64, from, to time.Time) (int, error)
	RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]ledger.Event, error)
	EventsForSubscription(ctx context.Context, subscriptionID int64, limit int) ([]ledger.Event, error)
	EventStats(ctx context.Context, from, to time.Time) (ledger.Stats, error)
}

// DialogRepo: шаг диалога бота по чату, payload хранится как JSON.
type DialogRepo interface {
	DialogState(ctx context.Context, chatID int64) (state string, payload []byte, err error)
	SaveDialogState(ctx context.Context, chatID int64, state string, payload []byte) error
	DeleteDialogState(ctx context.Context, chatID int64) error
}

// Tx: все операции в рамках одной транзакции.
type Tx interface {
	PlanRepo
	SubscriptionRepo
	PlateRepo
	CounterRepo
	LedgerRepo
	DialogRepo
}

type Store interface {
	// InTx выполняет fn в транзакции; ошибка fn откатывает её.
	InTx(ctx context.Context, fn func(Tx) error) error
	// View: транзакция только на чтение.
	View(ctx context.Context, fn func(Tx) error) error
	Close() error
}
