package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
)

const planColumns = `id,title,price::text,active,plate_mode,max_plates,reset_periodicity,duration_days,
	auto_renew,renewal_notice_days,created_at`

func (t *tx) Plan(ctx context.Context, id int64) (*plans.Plan, error) {
	row := t.q.QueryRow(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE id = $1`, id)
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
	rows, err := t.q.Query(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var out []plans.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := t.loadPlanParts(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *tx) CreatePlan(ctx context.Context, p *plans.Plan) (int64, error) {
	const q = `
		INSERT INTO subscription_plans
		(title, price, active, plate_mode, max_plates, reset_periodicity, duration_days, auto_renew, renewal_notice_days)
		VALUES ($1,$2::numeric,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id`
	var id int64
	if err := t.q.QueryRow(ctx, q, p.Title, p.Price.StringFixed(2), p.Active, string(p.PlateMode), p.MaxPlates,
		string(p.Reset), p.DurationDays, p.AutoRenew, p.RenewalNoticeDays).Scan(&id); err != nil {
		return 0, mapErr(err)
	}

	for _, s := range p.Services {
		var kind *string
		if s.SubPeriodKind != "" {
			k := string(s.SubPeriodKind)
			kind = &k
		}
		if _, err := t.q.Exec(ctx, `
			INSERT INTO plan_services (plan_id, service_id, quota_per_period, total_period_cap, sub_period_cap, sub_period_kind)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			id, s.ServiceID, s.QuotaPerPeriod, s.TotalPeriodCap, s.SubPeriodCap, kind); err != nil {
			return 0, mapErr(err)
		}
	}
	for _, d := range p.DailyAccess {
		if _, err := t.q.Exec(ctx, `
			INSERT INTO plan_daily_access (plan_id, weekday, max_accesses) VALUES ($1,$2,$3)`,
			id, d.Weekday, d.MaxAccesses); err != nil {
			return 0, mapErr(err)
		}
	}
	return id, nil
}

func (t *tx) loadPlanParts(ctx context.Context, p *plans.Plan) error {
	rows, err := t.q.Query(ctx, `
		SELECT service_id, quota_per_period, total_period_cap, sub_period_cap, sub_period_kind
		FROM plan_services WHERE plan_id = $1 ORDER BY service_id`, p.ID)
	if err != nil {
		return err
	}
	p.Services = nil
	for rows.Next() {
		var (
			s    plans.IncludedService
			kind *string
		)
		if err := rows.Scan(&s.ServiceID, &s.QuotaPerPeriod, &s.TotalPeriodCap, &s.SubPeriodCap, &kind); err != nil {
			rows.Close()
			return err
		}
		if kind != nil {
			s.SubPeriodKind = period.Periodicity(*kind)
		}
		p.Services = append(p.Services, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = t.q.Query(ctx, `
		SELECT weekday, max_accesses FROM plan_daily_access WHERE plan_id = $1 ORDER BY weekday`, p.ID)
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

func scanPlan(row pgx.Row) (*plans.Plan, error) {
	var (
		p                       plans.Plan
		price, plateMode, reset string
	)
	if err := row.Scan(&p.ID, &p.Title, &price, &p.Active, &plateMode, &p.MaxPlates, &reset,
		&p.DurationDays, &p.AutoRenew, &p.RenewalNoticeDays, &p.CreatedAt); err != nil {
		return nil, err
	}
	pr, err := decimal.NewFromString(price)
	if err != nil {
		return nil, err
	}
	p.Price = pr
	p.PlateMode = plans.PlateMode(plateMode)
	p.Reset = period.Periodicity(reset)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
