package postgres

import (
	"context"
	"time"

	"github.com/Spok95/subgate/internal/domain/ledger"
)

const eventColumns = `id,subscription_id,service_id,occurred_at,plate_used,verification_method,
	authorized,denial_reason,station,operator`

func (t *tx) AppendEvent(ctx context.Context, e *ledger.Event) (int64, error) {
	var plate *string
	if e.Plate != "" {
		plate = &e.Plate
	}
	var id int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO access_events
		(subscription_id, service_id, occurred_at, plate_used, verification_method,
		 authorized, denial_reason, station, operator)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`,
		e.SubscriptionID, e.ServiceID, e.At, plate, string(e.Method),
		e.Authorized, e.Reason, e.Station, e.Operator).Scan(&id)
	if err != nil {
		return 0, mapErr(err)
	}
	return id, nil
}

func (t *tx) CountAuthorized(ctx context.Context, subscriptionID, serviceID int64, from, to time.Time) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM access_events
		WHERE subscription_id = $1 AND service_id = $2 AND authorized
		  AND occurred_at >= $3 AND occurred_at < $4`,
		subscriptionID, serviceID, from, to).Scan(&n)
	return n, err
}

func (t *tx) RecentEvents(ctx context.Context, from, to time.Time, limit int) ([]ledger.Event, error) {
	return t.events(ctx, `SELECT `+eventColumns+` FROM access_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		ORDER BY occurred_at DESC, id DESC LIMIT $3`, from, to, limit)
}

func (t *tx) EventsForSubscription(ctx context.Context, subscriptionID int64, limit int) ([]ledger.Event, error) {
	return t.events(ctx, `SELECT `+eventColumns+` FROM access_events
		WHERE subscription_id = $1
		ORDER BY occurred_at DESC, id DESC LIMIT $2`, subscriptionID, limit)
}

func (t *tx) EventStats(ctx context.Context, from, to time.Time) (ledger.Stats, error) {
	var st ledger.Stats
	err := t.q.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE authorized), COUNT(*) FILTER (WHERE NOT authorized)
		FROM access_events WHERE occurred_at >= $1 AND occurred_at < $2`,
		from, to).Scan(&st.Authorized, &st.Denied)
	return st, err
}

func (t *tx) events(ctx context.Context, q string, args ...any) ([]ledger.Event, error) {
	rows, err := t.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Event
	for rows.Next() {
		var (
			e      ledger.Event
			method string
			plate  *string
		)
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.ServiceID, &e.At, &plate, &method,
			&e.Authorized, &e.Reason, &e.Station, &e.Operator); err != nil {
			return nil, err
		}
		if plate != nil {
			e.Plate = *plate
		}
		e.At = e.At.UTC()
		e.Method = ledger.Method(method)
		out = append(out, e)
	}
	return out, rows.Err()
}
