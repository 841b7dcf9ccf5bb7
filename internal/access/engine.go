package access

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
)

// Facts: то, что движку нужно прочитать из хранилища. storage.Tx подходит целиком.
type Facts interface {
	Plan(ctx context.Context, id int64) (*plans.Plan, error)
	HasActivePlate(ctx context.Context, subscriptionID int64, plate string) (bool, error)
	LockCounter(ctx context.Context, key counters.Key) (counters.Counter, error)
	TotalAccesses(ctx context.Context, subscriptionID, serviceID int64) (int, error)
	CountAuthorized(ctx context.Context, subscriptionID, serviceID int64, from, to time.Time) (int, error)
}

type Input struct {
	Subscription *subscriptions.Subscription
	ServiceID    int64
	Plate        string // уже нормализован
	Now          time.Time
}

type Decision struct {
	Authorized bool
	Reason     Reason
	Plan       *plans.Plan
	Service    plans.IncludedService
	// Counter: счётчик текущего периода (заблокирован до конца транзакции).
	Counter counters.Counter
	// Remaining: сколько проходов осталось до прохода, минимум по всем лимитам.
	Remaining int
}

func deny(r Reason) Decision { return Decision{Reason: r} }

type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Today: календарная дата момента now в зоне движка.
func (e *Engine) Today(now time.Time) time.Time { return period.Day(now, e.loc) }

// Decide проверяет условия по порядку; первый провал даёт причину отказа.
// Сам ничего не пишет, кроме создания нулевого счётчика периода.
func (e *Engine) Decide(ctx context.Context, f Facts, in Input) (Decision, error) {
	sub := in.Subscription
	today := e.Today(in.Now)

	switch sub.Status {
	case subscriptions.StatusActive:
	case subscriptions.StatusSuspended:
		return deny(ReasonSubscriptionSuspended), nil
	case subscriptions.StatusCancelled:
		return deny(ReasonSubscriptionCancelled), nil
	default:
		return deny(ReasonSubscriptionExpired), nil
	}
	if today.After(sub.ExpirationDate) {
		return deny(ReasonSubscriptionExpired), nil
	}

	plan, err := f.Plan(ctx, sub.PlanID)
	if err != nil {
		return Decision{}, fmt.Errorf("load plan %d: %w", sub.PlanID, err)
	}
	svc, ok := plan.Service(in.ServiceID)
	if !ok {
		return Decision{Reason: ReasonServiceNotIncluded, Plan: plan}, nil
	}
	d := Decision{Plan: plan, Service: svc}

	if plan.PlateMode.RequiresPlate() {
		if in.Plate == "" {
			d.Reason = ReasonPlateRequired
			return d, nil
		}
		ok, err := f.HasActivePlate(ctx, sub.ID, in.Plate)
		if err != nil {
			return Decision{}, fmt.Errorf("check plate: %w", err)
		}
		if !ok {
			d.Reason = ReasonPlateNotAuthorized
			return d, nil
		}
	}

	key := counters.Key{
		SubscriptionID: sub.ID,
		ServiceID:      svc.ServiceID,
		PeriodStart:    period.Start(plan.Reset, today),
	}
	c, err := f.LockCounter(ctx, key)
	if err != nil {
		return Decision{}, fmt.Errorf("lock counter: %w", err)
	}
	d.Counter = c

	rem, err := e.remaining(ctx, f, sub.ID, plan.Reset, svc, today, c.Count)
	if err != nil {
		return Decision{}, err
	}
	d.Remaining = rem
	if rem <= 0 {
		d.Reason = ReasonPeriodQuotaExceeded
		return d, nil
	}

	if limit, ok := plan.DailyLimit(period.Weekday(today)); ok {
		from, to := e.dayBounds(today)
		n, err := f.CountAuthorized(ctx, sub.ID, svc.ServiceID, from, to)
		if err != nil {
			return Decision{}, fmt.Errorf("count daily accesses: %w", err)
		}
		if n >= limit {
			d.Reason = ReasonDailyQuotaExceeded
			return d, nil
		}
	}

	d.Authorized = true
	return d, nil
}

// tierFacts: часть Facts, нужная для расчёта остатка; её же использует Usage.
type tierFacts interface {
	TotalAccesses(ctx context.Context, subscriptionID, serviceID int64) (int, error)
	CountAuthorized(ctx context.Context, subscriptionID, serviceID int64, from, to time.Time) (int, error)
}

// remaining: остаток по самому строгому из настроенных лимитов.
func (e *Engine) remaining(ctx context.Context, f tierFacts, subID int64, reset period.Periodicity,
	svc plans.IncludedService, today time.Time, used int) (int, error) {
	rem := svc.QuotaPerPeriod - used

	if svc.TotalPeriodCap != nil {
		total, err := f.TotalAccesses(ctx, subID, svc.ServiceID)
		if err != nil {
			return 0, fmt.Errorf("total accesses: %w", err)
		}
		rem = min(rem, *svc.TotalPeriodCap-total)
	}

	if svc.SubPeriodCap != nil {
		// подпериод не выходит за начало текущего периода сброса
		start := period.Start(svc.SubPeriodKind, today)
		if rs := period.Start(reset, today); rs.After(start) {
			start = rs
		}
		from := period.Midnight(start, e.loc)
		_, to := e.dayBounds(today)
		n, err := f.CountAuthorized(ctx, subID, svc.ServiceID, from, to)
		if err != nil {
			return 0, fmt.Errorf("count sub-period accesses: %w", err)
		}
		rem = min(rem, *svc.SubPeriodCap-n)
	}

	return max(rem, 0), nil
}

// dayBounds: [начало дня, начало следующего дня) в зоне движка.
func (e *Engine) dayBounds(day time.Time) (time.Time, time.Time) {
	return period.Midnight(day, e.loc), period.Midnight(day.AddDate(0, 0, 1), e.loc)
}
