package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/storage"
)

// LockCounter: в SQLite транзакция уже держит блокировку записи (BEGIN IMMEDIATE),
// поэтому достаточно создать строку, если её нет, и прочитать.
func (t *tx) LockCounter(ctx context.Context, key counters.Key) (counters.Counter, error) {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO period_counters (subscription_id, service_id, period_start, accesses_count, updated_at)
		VALUES (?,?,?,0,?)
		ON CONFLICT (subscription_id, service_id, period_start) DO NOTHING`,
		key.SubscriptionID, key.ServiceID, fmtDate(key.PeriodStart), fmtTS(time.Now())); err != nil {
		return counters.Counter{}, mapErr(err)
	}
	return t.readCounter(ctx, key)
}

func (t *tx) PeekCounter(ctx context.Context, key counters.Key) (counters.Counter, error) {
	c, err := t.readCounter(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return counters.Counter{Key: key}, nil
	}
	return c, err
}

func (t *tx) readCounter(ctx context.Context, key counters.Key) (counters.Counter, error) {
	c := counters.Counter{Key: key}
	var updated string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, accesses_count, updated_at FROM period_counters
		WHERE subscription_id = ? AND service_id = ? AND period_start = ?`,
		key.SubscriptionID, key.ServiceID, fmtDate(key.PeriodStart)).Scan(&c.ID, &c.Count, &updated)
	if err != nil {
		return counters.Counter{}, mapErr(err)
	}
	if c.UpdatedAt, err = parseTS(updated); err != nil {
		return counters.Counter{}, err
	}
	return c, nil
}

func (t *tx) IncrementCounter(ctx context.Context, key counters.Key, limit int) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE period_counters
		SET accesses_count = accesses_count + 1, updated_at = ?
		WHERE subscription_id = ? AND service_id = ? AND period_start = ?
		  AND accesses_count < ?
		RETURNING accesses_count`,
		fmtTS(time.Now()), key.SubscriptionID, key.ServiceID, fmtDate(key.PeriodStart), limit).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		// либо счётчика нет, либо лимит уже выбран
		return 0, storage.ErrQuotaExhausted
	}
	return n, err
}

func (t *tx) TotalAccesses(ctx context.Context, subscriptionID, serviceID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(accesses_count), 0) FROM period_counters
		WHERE subscription_id = ? AND service_id = ?`, subscriptionID, serviceID).Scan(&n)
	return n, err
}
