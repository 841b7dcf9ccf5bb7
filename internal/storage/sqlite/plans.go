package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
)

const planColumns = `id,title,price,active,plate_mode,max_plates,reset_periodicity,duration_days,
	auto_renew,renewal_notice_days,created_at`

func (t *tx) Plan(ctx context.Context, id int64) (*plans.Plan, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = ?`, id)
	p, err := scanPlan(row)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := t.loadPlanParts(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (t *tx) ListPlans(ctx context.Context) ([]plans.Plan, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []plans.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range out {
		if err := t.loadPlanParts(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *tx) CreatePlan(ctx context.Context, p *plans.Plan) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO subscription_plans
		(title, price, active, plate_mode, max_plates, reset_periodicity, duration_days,
		 auto_renew, renewal_notice_days, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.Title, p.Price.StringFixed(2), boolInt(p.Active), string(p.PlateMode), p.MaxPlates,
		string(p.Reset), p.DurationDays, boolInt(p.AutoRenew), p.RenewalNoticeDays, fmtTS(time.Now()))
	if err != nil {
		return 0, mapErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, s := range p.Services {
		var kind sql.NullString
		if s.SubPeriodKind != "" {
			kind = sql.NullString{String: string(s.SubPeriodKind), Valid: true}
		}
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO plan_services (plan_id, service_id, quota_per_period, total_period_cap, sub_period_cap, sub_period_kind)
			VALUES (?,?,?,?,?,?)`,
			id, s.ServiceID, s.QuotaPerPeriod, nullInt(s.TotalPeriodCap), nullInt(s.SubPeriodCap), kind); err != nil {
			return 0, mapErr(err)
		}
	}
	for _, d := range p.DailyAccess {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO plan_daily_access (plan_id, weekday, max_accesses) VALUES (?,?,?)`,
			id, d.Weekday, d.MaxAccesses); err != nil {
			return 0, mapErr(err)
		}
	}
	return id, nil
}

func (t *tx) loadPlanParts(ctx context.Context, p *plans.Plan) error {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT service_id, quota_per_period, total_period_cap, sub_period_cap, sub_period_kind
		FROM plan_services WHERE plan_id = ? ORDER BY service_id`, p.ID)
	if err != nil {
		return err
	}
	p.Services = nil
	for rows.Next() {
		var (
			s          plans.IncludedService
			total, sub sql.NullInt64
			kind       sql.NullString
		)
		if err := rows.Scan(&s.ServiceID, &s.QuotaPerPeriod, &total, &sub, &kind); err != nil {
			_ = rows.Close()
			return err
		}
		s.TotalPeriodCap = intFromNull(total)
		s.SubPeriodCap = intFromNull(sub)
		if kind.Valid {
			s.SubPeriodKind = period.Periodicity(kind.String)
		}
		p.Services = append(p.Services, s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	rows, err = t.tx.QueryContext(ctx, `
		SELECT weekday, max_accesses FROM plan_daily_access WHERE plan_id = ? ORDER BY weekday`, p.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	p.DailyAccess = nil
	for rows.Next() {
		var d plans.DailyAccess
		if err := rows.Scan(&d.Weekday, &d.MaxAccesses); err != nil {
			return err
		}
		p.DailyAccess = append(p.DailyAccess, d)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*plans.Plan, error) {
	var (
		p                 plans.Plan
		price, created    string
		active, autoRenew int
		plateMode, reset  string
	)
	if err := row.Scan(&p.ID, &p.Title, &price, &active, &plateMode, &p.MaxPlates, &reset,
		&p.DurationDays, &autoRenew, &p.RenewalNoticeDays, &created); err != nil {
		return nil, err
	}
	pr, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	p.Price = pr
	p.Active = active == 1
	p.AutoRenew = autoRenew == 1
	p.PlateMode = plans.PlateMode(plateMode)
	p.Reset = period.Periodicity(reset)
	if p.CreatedAt, err = parseTS(created); err != nil {
		return nil, err
	}
	return &p, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}
