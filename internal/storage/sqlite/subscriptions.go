package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
)

const subColumns = `id,customer_id,plan_id,access_code,nfc_code,activation_date,expiration_date,
	status,last_access_at,created_at`

func (t *tx) Subscription(ctx context.Context, id int64) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (t *tx) SubscriptionByAccessCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE access_code = ?`, code)
}

func (t *tx) SubscriptionByNFCCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return t.oneSubscription(ctx, `SELECT `+subColumns+` FROM subscriptions WHERE nfc_code = ?`, code)
}

func (t *tx) oneSubscription(ctx context.Context, q string, arg any) (*subscriptions.Subscription, error) {
	s, err := scanSubscription(t.tx.QueryRowContext(ctx, q, arg))
	if err != nil {
		return nil, mapErr(err)
	}
	return s, nil
}

func (t *tx) AccessCodeTaken(ctx context.Context, code string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE access_code = ?)`, code)
}

func (t *tx) NFCCodeTaken(ctx context.Context, code string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscriptions WHERE nfc_code = ?)`, code)
}

func (t *tx) exists(ctx context.Context, q string, args ...any) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *tx) CreateSubscription(ctx context.Context, s *subscriptions.Subscription) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscriptions
		(customer_id, plan_id, access_code, nfc_code, activation_date, expiration_date, status, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		s.CustomerID, s.PlanID, s.AccessCode, s.NFCCode, fmtDate(s.ActivationDate),
		fmtDate(s.ExpirationDate), string(s.Status), fmtTS(time.Now()))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (t *tx) SetStatus(ctx context.Context, id int64, st subscriptions.Status) error {
	return t.execOne(ctx, `UPDATE subscriptions SET status = ? WHERE id = ?`, string(st), id)
}

func (t *tx) TouchLastAccess(ctx context.Context, id int64, at time.Time) error {
	return t.execOne(ctx, `UPDATE subscriptions SET last_access_at = ? WHERE id = ?`, fmtTS(at), id)
}

func (t *tx) execOne(ctx context.Context, q string, args ...any) error {
	res, err := t.tx.ExecContext(ctx, q, args...)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) ExpireOverdue(ctx context.Context, today time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE subscriptions SET status = 'expired'
		WHERE status = 'active' AND expiration_date < ?`, fmtDate(today))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (t *tx) ExpiringBetween(ctx context.Context, from, to time.Time) ([]subscriptions.Subscription, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+subColumns+` FROM subscriptions
		WHERE status = 'active' AND expiration_date BETWEEN ? AND ?
		ORDER BY expiration_date, id`, fmtDate(from), fmtDate(to))
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
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM subscriptions WHERE status = 'active' AND expiration_date >= ?`,
		fmtDate(today)).Scan(&n)
	return n, err
}

func scanSubscription(row scanner) (*subscriptions.Subscription, error) {
	var (
		s                      subscriptions.Subscription
		activation, expiration string
		status, created        string
		lastAccess             sql.NullString
	)
	if err := row.Scan(&s.ID, &s.CustomerID, &s.PlanID, &s.AccessCode, &s.NFCCode,
		&activation, &expiration, &status, &lastAccess, &created); err != nil {
		return nil, err
	}
	var err error
	if s.ActivationDate, err = parseDate(activation); err != nil {
		return nil, err
	}
	if s.ExpirationDate, err = parseDate(expiration); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	if lastAccess.Valid {
		at, err := parseTS(lastAccess.String)
		if err != nil {
			return nil, err
		}
		s.LastAccessAt = &at
	}
	s.Status = subscriptions.Status(status)
	return &s, nil
}

/* Plates */

func (t *tx) AddPlate(ctx context.Context, subscriptionID int64, plate string) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscription_plates (subscription_id, plate, active, added_at)
		VALUES (?,?,1,?)
		ON CONFLICT (subscription_id, plate) DO UPDATE SET active = 1`,
		subscriptionID, plate, fmtTS(time.Now()))
	return mapErr(err)
}

func (t *tx) SetPlateActive(ctx context.Context, subscriptionID int64, plate string, active bool) error {
	return t.execOne(ctx, `UPDATE subscription_plates SET active = ? WHERE subscription_id = ? AND plate = ?`,
		boolInt(active), subscriptionID, plate)
}

func (t *tx) HasActivePlate(ctx context.Context, subscriptionID int64, plate string) (bool, error) {
	return t.exists(ctx, `SELECT EXISTS(SELECT 1 FROM subscription_plates
		WHERE subscription_id = ? AND plate = ? AND active = 1)`, subscriptionID, plate)
}

func (t *tx) Plates(ctx context.Context, subscriptionID int64) ([]subscriptions.Plate, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT subscription_id, plate, active, added_at
		FROM subscription_plates WHERE subscription_id = ? ORDER BY added_at, plate`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []subscriptions.Plate
	for rows.Next() {
		var (
			p      subscriptions.Plate
			active int
			added  string
		)
		if err := rows.Scan(&p.SubscriptionID, &p.Plate, &active, &added); err != nil {
			return nil, err
		}
		p.Active = active == 1
		if p.AddedAt, err = parseTS(added); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
