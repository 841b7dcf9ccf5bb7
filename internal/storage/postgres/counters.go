package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/storage"
)

// LockCounter создаёт строку счётчика при необходимости и берёт на неё FOR UPDATE:
// параллельные проходы по одному абонементу и услуге выстраиваются в очередь.
func (t *tx) LockCounter(ctx context.Context, key counters.Key) (counters.Counter, error) {
	if _, err := t.q.Exec(ctx, `
		INSERT INTO period_counters (subscription_id, service_id, period_start, accesses_count)
		VALUES ($1,$2,$3,0)
		ON CONFLICT (subscription_id, service_id, period_start) DO NOTHING`,
		key.SubscriptionID, key.ServiceID, key.PeriodStart); err != nil {
		return counters.Counter{}, mapErr(err)
	}
	return t.readCounter(ctx, key, " FOR UPDATE")
}

func (t *tx) PeekCounter(ctx context.Context, key counters.Key) (counters.Counter, error) {
	c, err := t.readCounter(ctx, key, "")
	if errors.Is(err, storage.ErrNotFound) {
		return counters.Counter{Key: key}, nil
	}
	return c, err
}

func (t *tx) readCounter(ctx context.Context, key counters.Key, suffix string) (counters.Counter, error) {
	c := counters.Counter{Key: key}
	err := t.q.QueryRow(ctx, `
		SELECT id, accesses_count, updated_at FROM period_counters
		WHERE subscription_id = $1 AND service_id = $2 AND period_start = $3`+suffix,
		key.SubscriptionID, key.ServiceID, key.PeriodStart).Scan(&c.ID, &c.Count, &c.UpdatedAt)
	if err != nil {
		return counters.Counter{}, mapErr(err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// IncrementCounter: условный инкремент: строка меняется, только пока счётчик ниже limit.
func (t *tx) IncrementCounter(ctx context.Context, key counters.Key, limit int) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		UPDATE period_counters
		SET accesses_count = accesses_count + 1, updated_at = NOW()
		WHERE subscription_id = $1 AND service_id = $2 AND period_start = $3
		  AND accesses_count < $4
		RETURNING accesses_count`,
		key.SubscriptionID, key.ServiceID, key.PeriodStart, limit).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, storage.ErrQuotaExhausted
	}
	return n, err
}

func (t *tx) TotalAccesses(ctx context.Context, subscriptionID, serviceID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(accesses_count), 0)::int FROM period_counters
		WHERE subscription_id = $1 AND service_id = $2`, subscriptionID, serviceID).Scan(&n)
	return n, err
}
