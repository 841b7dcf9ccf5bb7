package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
)

var ErrCodeNotFound = errors.New("access: code not found")

// Recorder: метрики решений.
type Recorder interface {
	ObserveDecision(reason string, authorized bool, took time.Duration)
}

// Publisher отправляет записи журнала наружу (отчёты, табло).
type Publisher interface {
	PublishAccess(ctx context.Context, e ledger.Event) error
}

// CodeCache: кэш code → subscription id. Коды не меняются, поэтому кэш не инвалидируется.
type CodeCache interface {
	Get(ctx context.Context, code string) (int64, bool)
	Set(ctx context.Context, code string, subscriptionID int64)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithRecorder(r Recorder) Option { return func(s *Service) { s.metrics = r } }

func WithPublisher(p Publisher) Option { return func(s *Service) { s.pub = p } }

func WithCodeCache(c CodeCache) Option { return func(s *Service) { s.codes = c } }

type Service struct {
	store   storage.Store
	engine  *Engine
	log     *slog.Logger
	now     func() time.Time
	metrics Recorder
	pub     Publisher
	codes   CodeCache
}

func NewService(store storage.Store, engine *Engine, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		log:    log,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) Now() time.Time { return s.now() }

type Request struct {
	SubscriptionID int64
	ServiceID      int64
	Plate          string
	Method         ledger.Method
	Station        string
	Operator       string
	// At: момент прохода; нулевое значение = часы сервиса.
	At time.Time
}

type Result struct {
	Authorized   bool
	Reason       Reason
	EventID      int64
	Count        int // счётчик периода после прохода
	Remaining    int // остаток после прохода
	Subscription *subscriptions.Subscription
}

// Authorize принимает решение и записывает его одной транзакцией:
// счётчик, журнал и last_access_at либо меняются вместе, либо никак.
func (s *Service) Authorize(ctx context.Context, req Request) (Result, error) {
	started := time.Now()
	at := req.At
	if at.IsZero() {
		at = s.now()
	}
	method := req.Method
	if method == "" {
		method = ledger.MethodNFC
	}
	if !method.Valid() {
		return Result{}, fmt.Errorf("access: unknown verification method %q", method)
	}
	plate := subscriptions.NormalizePlate(req.Plate)

	var (
		res Result
		ev  ledger.Event
	)
	err := s.store.InTx(ctx, func(tx storage.Tx) error {
		sub, err := tx.Subscription(ctx, req.SubscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", req.SubscriptionID, err)
		}
		d, err := s.engine.Decide(ctx, tx, Input{
			Subscription: sub,
			ServiceID:    req.ServiceID,
			Plate:        plate,
			Now:          at,
		})
		if err != nil {
			return err
		}

		res = Result{Subscription: sub, Count: d.Counter.Count, Remaining: d.Remaining}
		if d.Authorized {
			n, err := tx.IncrementCounter(ctx, d.Counter.Key, d.Service.QuotaPerPeriod)
			switch {
			case errors.Is(err, storage.ErrQuotaExhausted):
				d.Authorized, d.Reason = false, ReasonPeriodQuotaExceeded
			case err != nil:
				return fmt.Errorf("increment counter: %w", err)
			default:
				res.Count = n
				res.Remaining = d.Remaining - 1
				if err := tx.TouchLastAccess(ctx, sub.ID, at); err != nil {
					return fmt.Errorf("touch last access: %w", err)
				}
				t := at.UTC()
				sub.LastAccessAt = &t
			}
		}
		res.Authorized, res.Reason = d.Authorized, d.Reason

		ev = ledger.Event{
			SubscriptionID: sub.ID,
			ServiceID:      req.ServiceID,
			At:             at,
			Plate:          plate,
			Method:         method,
			Authorized:     d.Authorized,
			Reason:         string(d.Reason),
			Station:        req.Station,
			Operator:       req.Operator,
		}
		id, err := tx.AppendEvent(ctx, &ev)
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		ev.ID = id
		res.EventID = id
		return nil
	})
	if err != nil {
		s.log.Error("authorize failed",
			"subscription_id", req.SubscriptionID, "service_id", req.ServiceID, "err", err)
		return Result{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveDecision(string(res.Reason), res.Authorized, time.Since(started))
	}
	s.log.Info("access decision",
		"subscription_id", req.SubscriptionID,
		"service_id", req.ServiceID,
		"authorized", res.Authorized,
		"reason", string(res.Reason),
		"event_id", res.EventID,
		"station", req.Station,
	)
	if s.pub != nil {
		if err := s.pub.PublishAccess(ctx, ev); err != nil {
			// событие уже в БД, в очереди его просто не будет
			s.log.Warn("publish access event", "event_id", ev.ID, "err", err)
		}
	}
	return res, nil
}

// AuthorizeCode: поиск по коду и проход.
func (s *Service) AuthorizeCode(ctx context.Context, code string, req Request) (Result, error) {
	sub, err := s.Lookup(ctx, code)
	if err != nil {
		return Result{}, err
	}
	req.SubscriptionID = sub.ID
	return s.Authorize(ctx, req)
}

// Lookup ищет сначала по access_code, затем по nfc_code.
func (s *Service) Lookup(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return s.lookupOne(ctx, code, true, byAccessCode(ctx), byNFCCode(ctx))
}

func (s *Service) LookupAccessCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return s.lookupOne(ctx, code, false, byAccessCode(ctx))
}

func (s *Service) LookupNFCCode(ctx context.Context, code string) (*subscriptions.Subscription, error) {
	return s.lookupOne(ctx, code, false, byNFCCode(ctx))
}

type finder func(storage.Tx, string) (*subscriptions.Subscription, error)

func byAccessCode(ctx context.Context) finder {
	return func(tx storage.Tx, c string) (*subscriptions.Subscription, error) {
		return tx.SubscriptionByAccessCode(ctx, c)
	}
}

func byNFCCode(ctx context.Context) finder {
	return func(tx storage.Tx, c string) (*subscriptions.Subscription, error) {
		return tx.SubscriptionByNFCCode(ctx, c)
	}
}

// lookupOne: кэш знает код без типа, поэтому используется только при поиске по обоим полям.
func (s *Service) lookupOne(ctx context.Context, code string, cached bool, finders ...finder) (*subscriptions.Subscription, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrCodeNotFound
	}

	// кэш читается вне транзакции
	var (
		cachedID int64
		hit      bool
	)
	if cached && s.codes != nil {
		cachedID, hit = s.codes.Get(ctx, code)
	}

	var sub *subscriptions.Subscription
	err := s.store.View(ctx, func(tx storage.Tx) error {
		if hit {
			found, err := tx.Subscription(ctx, cachedID)
			if err == nil && (found.AccessCode == code || found.NFCCode == code) {
				sub = found
				return nil
			}
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				return err
			}
		}
		for _, find := range finders {
			found, err := find(tx, code)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			sub = found
			return nil
		}
		return ErrCodeNotFound
	})
	if err != nil {
		return nil, err
	}
	if cached && s.codes != nil {
		s.codes.Set(ctx, code, sub.ID)
	}
	return sub, nil
}

// ServiceUsage: остаток по одной услуге на текущий период.
type ServiceUsage struct {
	ServiceID   int64
	Included    int
	Used        int
	Remaining   int
	Percent     int
	PeriodStart time.Time
	DailyLimit  *int
}

// Overview: карточка абонемента для терминала.
type Overview struct {
	Subscription *subscriptions.Subscription
	Plan         *plans.Plan
	Plates       []subscriptions.Plate
	Services     []ServiceUsage
	Expired      bool
	DaysLeft     int
}

// Usage считает остатки по всем услугам плана без создания счётчиков.
func (s *Service) Usage(ctx context.Context, subscriptionID int64, at time.Time) (*Overview, error) {
	if at.IsZero() {
		at = s.now()
	}
	today := s.engine.Today(at)

	var ov Overview
	err := s.store.View(ctx, func(tx storage.Tx) error {
		sub, err := tx.Subscription(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("load subscription %d: %w", subscriptionID, err)
		}
		plan, err := tx.Plan(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("load plan %d: %w", sub.PlanID, err)
		}
		plates, err := tx.Plates(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("load plates: %w", err)
		}
		ov = Overview{
			Subscription: sub,
			Plan:         plan,
			Plates:       plates,
			Expired:      !sub.Usable(today),
			DaysLeft:     sub.DaysLeft(today),
		}

		start := period.Start(plan.Reset, today)
		for _, svc := range plan.Services {
			c, err := tx.PeekCounter(ctx, counters.Key{
				SubscriptionID: sub.ID,
				ServiceID:      svc.ServiceID,
				PeriodStart:    start,
			})
			if err != nil {
				return fmt.Errorf("peek counter: %w", err)
			}
			rem, err := s.engine.remaining(ctx, tx, sub.ID, plan.Reset, svc, today, c.Count)
			if err != nil {
				return err
			}
			u := ServiceUsage{
				ServiceID:   svc.ServiceID,
				Included:    svc.QuotaPerPeriod,
				Used:        c.Count,
				Remaining:   rem,
				PeriodStart: start,
			}
			if svc.QuotaPerPeriod > 0 {
				u.Percent = min(100, c.Count*100/svc.QuotaPerPeriod)
			}
			if limit, ok := plan.DailyLimit(period.Weekday(today)); ok {
				u.DailyLimit = &limit
			}
			ov.Services = append(ov.Services, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if limit := ov.Plan.PlateLimit(); limit > 0 {
		if n := activePlates(ov.Plates); n > limit {
			s.log.Warn("plates over advisory limit",
				"subscription_id", subscriptionID, "plates", n, "max_plates", limit)
		}
	}
	return &ov, nil
}

func activePlates(ps []subscriptions.Plate) int {
	n := 0
	for _, p := range ps {
		if p.Active {
			n++
		}
	}
	return n
}

func (s *Service) History(ctx context.Context, subscriptionID int64, limit int) ([]ledger.Event, error) {
	var out []ledger.Event
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.EventsForSubscription(ctx, subscriptionID, limit)
		return err
	})
	return out, err
}

// Recent: последние проходы за день момента at.
func (s *Service) Recent(ctx context.Context, at time.Time, limit int) ([]ledger.Event, error) {
	if at.IsZero() {
		at = s.now()
	}
	from, to := s.engine.dayBounds(s.engine.Today(at))
	var out []ledger.Event
	err := s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		out, err = tx.RecentEvents(ctx, from, to, limit)
		return err
	})
	return out, err
}

// ExpiringSoonDays: горизонт «скоро истекает» для сводки дня.
const ExpiringSoonDays = 7

type DayStats struct {
	Day          time.Time
	Authorized   int
	Denied       int
	Active       int
	ExpiringSoon int
}

func (s *Service) Today(ctx context.Context, at time.Time) (DayStats, error) {
	if at.IsZero() {
		at = s.now()
	}
	today := s.engine.Today(at)
	from, to := s.engine.dayBounds(today)

	st := DayStats{Day: today}
	err := s.store.View(ctx, func(tx storage.Tx) error {
		ls, err := tx.EventStats(ctx, from, to)
		if err != nil {
			return err
		}
		st.Authorized, st.Denied = ls.Authorized, ls.Denied
		if st.Active, err = tx.CountActive(ctx, today); err != nil {
			return err
		}
		soon, err := tx.ExpiringBetween(ctx, today, today.AddDate(0, 0, ExpiringSoonDays))
		if err != nil {
			return err
		}
		st.ExpiringSoon = len(soon)
		return nil
	})
	return st, err
}
