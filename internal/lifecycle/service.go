// Package lifecycle: выпуск и смена статусов абонементов.
// Сами проходы считает пакет access; здесь только то, что меняет абонемент целиком.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Spok95/subgate/internal/domain/credentials"
	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
)

var (
	ErrInvalidTransition = errors.New("lifecycle: status transition not allowed")
	ErrPlanInactive      = errors.New("lifecycle: plan is not on sale")
	ErrNotRenewable      = errors.New("lifecycle: subscription has not expired yet")
	ErrPlatesNotUsed     = errors.New("lifecycle: plan does not use plates")
)

type Service struct {
	store storage.Store
	gen   *credentials.Generator
	loc   *time.Location
	log   *slog.Logger
	now   func() time.Time
}

func NewService(store storage.Store, gen *credentials.Generator, loc *time.Location, log *slog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, gen: gen, loc: loc, log: log, now: time.Now}
}

// WithClock подменяет часы (тесты).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) today(at time.Time) time.Time {
	if at.IsZero() {
		at = s.now()
	}
	return period.Day(at, s.loc)
}

// CreatePlan проверяет и сохраняет план.
func (s *Service) CreatePlan(ctx context.Context, p *plans.Plan) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		id, err = tx.CreatePlan(ctx, p)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("create plan %q: %w", p.Title, err)
	}
	s.log.Info("plan created", "plan_id", id, "title", p.Title)
	return id, nil
}

func (s *Service) Plans(ctx context.Context) ([]plans.Plan, error) {
	var out []plans.Plan
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ListPlans(ctx)
		return err
	})
	return out, err
}

type IssueRequest struct {
	CustomerID int64
	PlanID     int64
	// Activation: дата начала; нулевая = сегодня.
	Activation time.Time
	Plates     []string
}

// Issue выпускает абонемент: коды, срок и номера.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*subscriptions.Subscription, error) {
	activation := req.Activation
	if activation.IsZero() {
		activation = s.today(time.Time{})
	} else {
		activation = period.Day(activation, time.UTC)
	}

	var sub *subscriptions.Subscription
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		plan, err := tx.Plan(ctx, req.PlanID)
		if err != nil {
			return fmt.Errorf("load plan %d: %w", req.PlanID, err)
		}
		if !plan.Active {
			return ErrPlanInactive
		}
		sub, err = s.create(ctx, tx, plan, req.CustomerID, activation)
		if err != nil {
			return err
		}
		return s.attachPlates(ctx, tx, plan, sub.ID, req.Plates)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription issued",
		"subscription_id", sub.ID, "customer_id", sub.CustomerID, "plan_id", sub.PlanID,
		"expires", sub.ExpirationDate.Format(time.DateOnly))
	return sub, nil
}

func (s *Service) create(ctx context.Context, tx storage.Tx, plan *plans.Plan, customerID int64, activation time.Time) (*subscriptions.Subscription, error) {
	code, err := s.gen.AccessCode(ctx, tx.AccessCodeTaken)
	if err != nil {
		return nil, err
	}
	nfc, err := s.gen.NFCCode(ctx, tx.NFCCodeTaken)
	if err != nil {
		return nil, err
	}
	sub := &subscriptions.Subscription{
		CustomerID:     customerID,
		PlanID:         plan.ID,
		AccessCode:     code,
		NFCCode:        nfc,
		ActivationDate: activation,
		ExpirationDate: activation.AddDate(0, 0, plan.DurationDays),
		Status:         subscriptions.StatusActive,
	}
	if sub.ID, err = tx.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// attachPlates: номера пишутся только для планов с номерами.
func (s *Service) attachPlates(ctx context.Context, tx storage.Tx, plan *plans.Plan, subID int64, plates []string) error {
	if !plan.PlateMode.RequiresPlate() {
		return nil
	}
	n := 0
	for _, raw := range plates {
		p := subscriptions.NormalizePlate(raw)
		if p == "" {
			continue
		}
		if err := tx.AddPlate(ctx, subID, p); err != nil {
			return fmt.Errorf("add plate %s: %w", p, err)
		}
		n++
	}
	s.warnPlates(plan, subID, n)
	return nil
}

// warnPlates: max_plates: только подсказка, движок его не проверяет.
func (s *Service) warnPlates(plan *plans.Plan, subID int64, n int) {
	if limit := plan.PlateLimit(); limit > 0 && n > limit {
		s.log.Warn("plates over advisory limit", "subscription_id", subID, "plates", n, "max_plates", limit)
	}
}

// Renew выпускает новый абонемент на тот же план с сегодняшнего дня
// и переносит активные номера. Старый должен быть истёкшим.
func (s *Service) Renew(ctx context.Context, subID int64, at time.Time) (*subscriptions.Subscription, error) {
	today := s.today(at)

	var fresh *subscriptions.Subscription
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		old, err := tx.Subscription(ctx, subID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", subID, err)
		}
		overdue := old.Status == subscriptions.StatusActive && today.After(old.ExpirationDate)
		if old.Status != subscriptions.StatusExpired && !overdue {
			return ErrNotRenewable
		}
		plan, err := tx.Plan(ctx, old.PlanID)
		if err != nil {
			return fmt.Errorf("load plan %d: %w", old.PlanID, err)
		}
		if !plan.Active {
			return ErrPlanInactive
		}
		if overdue {
			if err := tx.SetStatus(ctx, old.ID, subscriptions.StatusExpired); err != nil {
				return err
			}
		}

		fresh, err = s.create(ctx, tx, plan, old.CustomerID, today)
		if err != nil {
			return err
		}
		plates, err := tx.Plates(ctx, old.ID)
		if err != nil {
			return err
		}
		var active []string
		for _, p := range plates {
			if p.Active {
				active = append(active, p.Plate)
			}
		}
		return s.attachPlates(ctx, tx, plan, fresh.ID, active)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription renewed", "old_id", subID, "subscription_id", fresh.ID)
	return fresh, nil
}

func (s *Service) Suspend(ctx context.Context, subID int64) error {
	return s.transition(ctx, subID, subscriptions.StatusSuspended, subscriptions.StatusActive)
}

func (s *Service) Resume(ctx context.Context, subID int64) error {
	return s.transition(ctx, subID, subscriptions.StatusActive, subscriptions.StatusSuspended)
}

func (s *Service) Cancel(ctx context.Context, subID int64) error {
	return s.transition(ctx, subID, subscriptions.StatusCancelled, subscriptions.StatusActive, subscriptions.StatusSuspended)
}

func (s *Service) transition(ctx context.Context, subID int64, to subscriptions.Status, from ...subscriptions.Status) error {
	var prev subscriptions.Status
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sub, err := tx.Subscription(ctx, subID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", subID, err)
		}
		prev = sub.Status
		allowed := false
		for _, f := range from {
			if sub.Status == f {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, sub.Status, to)
		}
		return tx.SetStatus(ctx, subID, to)
	})
	if err != nil {
		return err
	}
	s.log.Info("subscription status changed", "subscription_id", subID, "from", string(prev), "to", string(to))
	return nil
}

func (s *Service) AddPlate(ctx context.Context, subID int64, plate string) error {
	plate = subscriptions.NormalizePlate(plate)
	if plate == "" {
		return fmt.Errorf("lifecycle: empty plate")
	}
	return s.store.InTx(ctx, func(tx storage.Tx) error {
		sub, err := tx.Subscription(ctx, subID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", subID, err)
		}
		plan, err := tx.Plan(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("load plan %d: %w", sub.PlanID, err)
		}
		if !plan.PlateMode.RequiresPlate() {
			return ErrPlatesNotUsed
		}
		if err := tx.AddPlate(ctx, subID, plate); err != nil {
			return err
		}
		plates, err := tx.Plates(ctx, subID)
		if err != nil {
			return err
		}
		n := 0
		for _, p := range plates {
			if p.Active {
				n++
			}
		}
		s.warnPlates(plan, subID, n)
		return nil
	})
}

func (s *Service) DeactivatePlate(ctx context.Context, subID int64, plate string) error {
	plate = subscriptions.NormalizePlate(plate)
	return s.store.InTx(ctx, func(tx storage.Tx) error {
		return tx.SetPlateActive(ctx, subID, plate, false)
	})
}

// SweepExpired переводит просроченные активные абонементы в expired.
func (s *Service) SweepExpired(ctx context.Context, at time.Time) (int64, error) {
	today := s.today(at)
	var n int64
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		var err error
		n, err = tx.ExpireOverdue(ctx, today)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("sweep expired: %w", err)
	}
	if n > 0 {
		s.log.Info("subscriptions expired", "count", n, "day", today.Format(time.DateOnly))
	}
	return n, nil
}

// Expiring: активные абонементы, которые заканчиваются в ближайшие days дней.
func (s *Service) Expiring(ctx context.Context, at time.Time, days int) ([]subscriptions.Subscription, error) {
	if days < 0 {
		days = 0
	}
	today := s.today(at)
	var out []subscriptions.Subscription
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.ExpiringBetween(ctx, today, today.AddDate(0, 0, days))
		return err
	})
	return out, err
}
