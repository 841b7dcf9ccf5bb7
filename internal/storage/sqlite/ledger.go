package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/Spok95/subgate/internal/domain/ledger"
)

const eventColumns = `id,subscription_id,service_id,occurred_at,plate_used,verification_method,
	authorized,denial_reason,station,operator`

func (t *tx) AppendEvent(ctx context.Context, e *ledger.Event) (int64, error) {
	var plate sql.NullString
	if e.Plate != "" {
		plate = sql.NullString{String: e.Plate, Valid: true}
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO access_events
		(subscription_id, service_id, occurred_at, plate_used, verification_method,
		 authorized, denial_reason, station, operator)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		e.SubscriptionID, e.ServiceID, fmtTS(e.At), plate, string(e.Method),
		boolInt(e.Authorized), e.Reason, e.Station, e.Operator)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.LastInsertId()
}

func (t *tx) CountAuthorized(ctx context.Context, subscriptionID, serviceID int64, from, to time.Time) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM access_events
		WHERE subscription_id = ? AND service_id = ? AND authorized = 1
		  AND occurred_at >= ? AND occurred_at < ?`,
		subscriptionID, serviceID, fmtTS(from), fmtTS(to)).Scan(&n)
	return n, err
}

func (t *tx) RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]ledger.Event, error) {
	return t.events(ctx, `SELECT `+eventColumns+` FROM access_events
		WHERE occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at DESC, id DESC LIMIT ?`, fmtTS(from), fmtTS(to), limit)
}

func (t *tx) EventsForSubscription(ctx context.Context, subscriptionID int64, limit int) ([]ledger.Event, error) {
	return t.events(ctx, `SELECT `+eventColumns+` FROM access_events
		WHERE subscription_id = ?
		ORDER BY occurred_at DESC, id DESC LIMIT ?`, subscriptionID, limit)
}

func (t *tx) EventStats(ctx context.Context, from, to time.Time) (ledger.Stats, error) {
	var st ledger.Stats
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN authorized = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN authorized = 0 THEN 1 ELSE 0 END), 0)
		FROM access_events WHERE occurred_at >= ? AND occurred_at < ?`,
		fmtTS(from), fmtTS(to)).Scan(&st.Authorized, &st.Denied)
	return st, err
}

func (t *tx) events(ctx context.Context, q string, args ...any) ([]ledger.Event, error) {
	rows, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e          ledger.Event
			at, method string
			plate      sql.NullString
			authorized int
		)
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.ServiceID, &at, &plate, &method,
			&authorized, &e.Reason, &e.Station, &e.Operator); err != nil {
			return nil, err
		}
		if e.At, err = parseTS(at); err != nil {
			return nil, err
		}
		e.Plate = plate.String
		e.Method = ledger.Method(method)
		e.Authorized = authorized == 1
		out = append(out, e)
	}
	return out, rows.Err()
}
