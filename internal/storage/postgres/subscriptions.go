package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
)

const subColumns = `id,customer_id,plan_id,access_code,nfc_code,activation_date,expiration_date,
	status,last_access_at,created_at`

func (t *tx) Subscription(ctx context.Context, id int64) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE id = $1`, id)
}

func (t *tx) SubscriptionByAccessCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE access_code = $1`, code)
}

func (t *tx) SubscriptionByNFCCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE nfc_code = $1`, code)
}

func (t *tx) oneSubscription(ctx context.Context, q string, arg any) (*subscriptions.Subscription, error) {
	s, err := scanSubscription(t.q.QueryRow(ctx, q, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (t *tx) AccessCodeTaken(ctx context.Context, code string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE access_code = $1)`, code)
}

func (t *tx) NFCCodeTaken(ctx context.Context, code string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE nfc_code = $1)`, code)
}

func (t *tx) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var ok bool
	if err := t.q.QueryRow(ctx, q, args...).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

func (t *tx) CreateSubscription(ctx context.Context, s *subscriptions.Subscription) (int64, error) {
	const q = `
		INSERT INTO subscriptions
		(customer_id, plan_id, access_code, nfc_code, activation_date, expiration_date, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`
	var id int64
	if err := t.q.QueryRow(ctx, q, s.CustomerID, s.PlanID, s.AccessCode, s.NFCCode,
		s.ActivationDate, s.ExpirationDate, string(s.Status)).Scan(&id); err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (t *tx) SetStatus(ctx context.Context, id int64, st subscriptions.Status) error {
	return t.execOne(ctx, `UPDATE subscriptions SET status = $1, updated_at = NOW() WHERE id = $2`, string(st), id)
}

func (t *tx) TouchLastAccess(ctx context.Context, id int64, at time.Time) error {
	return t.execOne(ctx, `UPDATE subscriptions SET last_access_at = $1 WHERE id = $2`, at, id)
}

func (t *tx) execOne(ctx context.Context, q string, args ...any) error {
	ct, err := t.q.Exec(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) ExpireOverdue(ctx context.Context, today time.Time) (int64, error) {
	ct, err := t.q.Exec(ctx, `
		UPDATE subscriptions SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND expiration_date < $1`, today)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (t *tx) ExpiringBetween(ctx context.Context, from, to time.Time) ([]subscriptions.Subscription, error) {
	rows, err := t.q.Query(ctx, `SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'active' AND expiration_date BETWEEN $1 AND $2
		ORDER BY expiration_date, id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subscriptions.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (t *tx) CountActive(ctx context.Context, today time.Time) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE status = 'active' AND expiration_date >= $1`,
		today).Scan(&n)
	return n, err
}

func scanSubscription(row pgx.Row) (*subscriptions.Subscription, error) {
	var (
		s          subscriptions.Subscription
		status     string
		lastAccess *time.Time
	)
	if err := row.Scan(&s.ID, &s.CustomerID, &s.PlanID, &s.AccessCode, &s.NFCCode,
		&s.ActivationDate, &s.ExpirationDate, &status, &lastAccess, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Status = subscriptions.Status(status)
	s.CreatedAt = s.CreatedAt.UTC()
	if lastAccess != nil {
		at := lastAccess.UTC()
		s.LastAccessAt = &at
	}
	return &s, nil
}

/* Plates */

func (t *tx) AddPlate(ctx context.Context, subscriptionID int64, plate string) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO subscription_plates (subscription_id, plate, active)
		VALUES ($1,$2,TRUE)
		ON CONFLICT (subscription_id, plate) DO UPDATE SET active = TRUE`,
		subscriptionID, plate)
	return mapErr(err)
}

func (t *tx) SetPlateActive(ctx context.Context, subscriptionID int64, plate string, active bool) error {
	return t.execOne(ctx, `UPDATE subscription_plates SET active = $1 WHERE subscription_id = $2 AND plate = $3`,
		active, subscriptionID, plate)
}

func (t *tx) HasActivePlate(ctx context.Context, subscriptionID int64, plate string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscription_plates
		WHERE subscription_id = $1 AND plate = $2 AND active)`, subscriptionID, plate)
}

func (t *tx) Plates(ctx context.Context, subscriptionID int64) ([]subscriptions.Plate, error) {
	rows, err := t.q.Query(ctx, `
		SELECT subscription_id, plate, active, added_at
		FROM subscription_plates WHERE subscription_id = $1 ORDER BY added_at, plate`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subscriptions.Plate
	for rows.Next() {
		var p subscriptions.Plate
		if err := rows.Scan(&p.SubscriptionID, &p.Plate, &p.Active, &p.AddedAt); err != nil {
			return nil, err
		}
		p.AddedAt = p.AddedAt.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
