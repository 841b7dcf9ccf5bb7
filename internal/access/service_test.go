package access_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
	"github.com/Spok95/subgate/internal/testutil"
)

type recorder struct {
	mu        sync.Mutex
	decisions map[string]int
}

func (r *recorder) ObserveDecision(reason string, authorized bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decisions == nil {
		r.decisions = map[string]int{}
	}
	if authorized {
		reason = "authorized"
	}
	r.decisions[reason]++
}

type publisher struct {
	mu     sync.Mutex
	events []ledger.Event
}

func (p *publisher) PublishAccess(_ context.Context, e ledger.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type memCache map[string]int64

func (c memCache) Get(_ context.Context, code string) (int64, bool) {
	id, ok := c[code]
	return id, ok
}

func (c memCache) Set(_ context.Context, code string, id int64) { c[code] = id }

func newService(t *testing.T, opts ...access.Option) (*access.Service, storage.Store) {
	t.Helper()
	st := testutil.NewStore(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return access.NewService(st, access.NewEngine(time.UTC), log, opts...), st
}

func authorize(t *testing.T, svc *access.Service, subID int64, at time.Time, plate string) access.Result {
	t.Helper()
	res, err := svc.Authorize(context.Background(), access.Request{
		SubscriptionID: subID,
		ServiceID:      1,
		Plate:          plate,
		Method:         ledger.MethodNFC,
		Station:        "gate-1",
		At:             at,
	})
	require.NoError(t, err)
	return res
}

func counterFor(t *testing.T, st storage.Store, subID int64, start time.Time) int {
	t.Helper()
	ctx := context.Background()
	var n int
	require.NoError(t, st.View(ctx, func(tx storage.Tx) error {
		c, err := tx.PeekCounter(ctx, counters.Key{SubscriptionID: subID, ServiceID: 1, PeriodStart: start})
		n = c.Count
		return err
	}))
	return n
}

func history(t *testing.T, svc *access.Service, subID int64) []ledger.Event {
	t.Helper()
	evs, err := svc.History(context.Background(), subID, 100)
	require.NoError(t, err)
	return evs
}

func TestScenarioMonthlyQuota(t *testing.T) {
	rec, pub := &recorder{}, &publisher{}
	svc, st := newService(t, access.WithRecorder(rec), access.WithPublisher(pub))
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	for i, day := range []int{15, 18, 22, 25} {
		res := authorize(t, svc, sub.ID, testutil.At(2024, 1, day, 10), "")
		assert.True(t, res.Authorized, "day %d", day)
		assert.Equal(t, i+1, res.Count)
		assert.Equal(t, 3-i, res.Remaining)
		assert.NotZero(t, res.EventID)
	}
	res := authorize(t, svc, sub.ID, testutil.At(2024, 1, 28, 10), "")
	assert.False(t, res.Authorized)
	assert.Equal(t, access.ReasonPeriodQuotaExceeded, res.Reason)
	assert.NotZero(t, res.EventID)

	assert.Equal(t, 4, counterFor(t, st, sub.ID, testutil.Date(2024, 1, 1)))
	evs := history(t, svc, sub.ID)
	require.Len(t, evs, 5)
	assert.Equal(t, string(access.ReasonPeriodQuotaExceeded), evs[0].Reason)
	assert.False(t, evs[0].Authorized)

	assert.Equal(t, map[string]int{"authorized": 4, "period_quota_exceeded": 1}, rec.decisions)
	assert.Len(t, pub.events, 5)

	ov, err := svc.Usage(context.Background(), sub.ID, testutil.At(2024, 1, 28, 11))
	require.NoError(t, err)
	require.NotNil(t, ov.Subscription.LastAccessAt)
	assert.True(t, testutil.At(2024, 1, 25, 10).Equal(*ov.Subscription.LastAccessAt))
}

func TestScenarioDailyCap(t *testing.T) {
	svc, st := newService(t)
	p := testutil.MonthlyPlan(1, 4)
	p.DailyAccess = []plans.DailyAccess{{Weekday: 5, MaxAccesses: 1}}
	plan := testutil.CreatePlan(t, st, p)
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	// 20.01.2024: суббота
	first := authorize(t, svc, sub.ID, testutil.At(2024, 1, 20, 9), "")
	assert.True(t, first.Authorized)
	second := authorize(t, svc, sub.ID, testutil.At(2024, 1, 20, 17), "")
	assert.False(t, second.Authorized)
	assert.Equal(t, access.ReasonDailyQuotaExceeded, second.Reason)

	// в воскресенье ограничения нет
	sunday := authorize(t, svc, sub.ID, testutil.At(2024, 1, 21, 9), "")
	assert.True(t, sunday.Authorized)
}

func TestScenarioExpiredByDate(t *testing.T) {
	svc, st := newService(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	last := authorize(t, svc, sub.ID, testutil.At(2024, 2, 9, 23), "")
	assert.True(t, last.Authorized, "expiration day is still usable")

	res := authorize(t, svc, sub.ID, testutil.At(2024, 2, 10, 8), "")
	assert.False(t, res.Authorized)
	assert.Equal(t, access.ReasonSubscriptionExpired, res.Reason)
}

func TestScenarioPlates(t *testing.T) {
	svc, st := newService(t)
	p := testutil.MonthlyPlan(1, 4)
	p.PlateMode = plans.PlateSingle
	plan := testutil.CreatePlan(t, st, p)
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10), "AB123CD")
	at := testutil.At(2024, 1, 15, 10)

	res := authorize(t, svc, sub.ID, at, "")
	assert.Equal(t, access.ReasonPlateRequired, res.Reason)

	res = authorize(t, svc, sub.ID, at, "AB999ZZ")
	assert.Equal(t, access.ReasonPlateNotAuthorized, res.Reason)

	res = authorize(t, svc, sub.ID, at, " ab123cd ")
	assert.True(t, res.Authorized)

	evs := history(t, svc, sub.ID)
	require.Len(t, evs, 3)
	assert.Equal(t, "AB123CD", evs[0].Plate)
	assert.Equal(t, "AB999ZZ", evs[1].Plate)
	assert.Empty(t, evs[2].Plate)
}

func TestScenarioNewPeriodStartsFromZero(t *testing.T) {
	svc, st := newService(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	for _, day := range []int{15, 18, 22, 25} {
		require.True(t, authorize(t, svc, sub.ID, testutil.At(2024, 1, day, 10), "").Authorized)
	}
	require.False(t, authorize(t, svc, sub.ID, testutil.At(2024, 1, 28, 10), "").Authorized)

	res := authorize(t, svc, sub.ID, testutil.At(2024, 2, 1, 10), "")
	assert.True(t, res.Authorized)
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, 4, counterFor(t, st, sub.ID, testutil.Date(2024, 1, 1)))
	assert.Equal(t, 1, counterFor(t, st, sub.ID, testutil.Date(2024, 2, 1)))
}

func TestStatusDenialsAreRecorded(t *testing.T) {
	svc, st := newService(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))
	testutil.SetStatus(t, st, sub.ID, subscriptions.StatusSuspended)

	res := authorize(t, svc, sub.ID, testutil.At(2024, 1, 15, 10), "")
	assert.Equal(t, access.ReasonSubscriptionSuspended, res.Reason)

	evs := history(t, svc, sub.ID)
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Authorized)
	assert.Equal(t, "subscription_suspended", evs[0].Reason)
	assert.Equal(t, "gate-1", evs[0].Station)
}

func TestUnknownSubscriptionIsSystemError(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	_, err := svc.Authorize(ctx, access.Request{SubscriptionID: 42, ServiceID: 1})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.AuthorizeCode(ctx, "NOSUCH00", access.Request{ServiceID: 1})
	assert.ErrorIs(t, err, access.ErrCodeNotFound)

	require.NoError(t, st.View(ctx, func(tx storage.Tx) error {
		evs, err := tx.RecentEvents(ctx, time.Time{}, time.Now().AddDate(10, 0, 0), 10)
		require.NoError(t, err)
		assert.Empty(t, evs)
		return nil
	}))
}

func TestInvalidMethodRejected(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Authorize(context.Background(), access.Request{SubscriptionID: 1, ServiceID: 1, Method: "smoke"})
	assert.Error(t, err)
}

func TestConcurrentAuthorizationsRespectQuota(t *testing.T) {
	svc, st := newService(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 1))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))
	at := testutil.At(2024, 1, 15, 10)

	const n = 12
	results := make([]access.Result, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			res, err := svc.Authorize(context.Background(), access.Request{
				SubscriptionID: sub.ID, ServiceID: 1, At: at, Method: ledger.MethodQR,
			})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	authorized := 0
	for _, r := range results {
		if r.Authorized {
			authorized++
			continue
		}
		assert.Equal(t, access.ReasonPeriodQuotaExceeded, r.Reason)
	}
	assert.Equal(t, 1, authorized)
	assert.Equal(t, 1, counterFor(t, st, sub.ID, testutil.Date(2024, 1, 1)))
	assert.Len(t, history(t, svc, sub.ID), n)
}

func TestCounterNeverExceedsAuthorizedEvents(t *testing.T) {
	svc, st := newService(t)
	p := testutil.MonthlyPlan(1, 3)
	p.DurationDays = 60
	p.DailyAccess = []plans.DailyAccess{{Weekday: 0, MaxAccesses: 1}}
	plan := testutil.CreatePlan(t, st, p)
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 1))

	start := testutil.At(2024, 1, 1, 6)
	for h := 0; h < 24*45; h += 7 {
		authorize(t, svc, sub.ID, start.Add(time.Duration(h)*time.Hour), "")
	}

	ctx := context.Background()
	for _, month := range []time.Time{testutil.Date(2024, 1, 1), testutil.Date(2024, 2, 1)} {
		var authorized int
		require.NoError(t, st.View(ctx, func(tx storage.Tx) error {
			var err error
			authorized, err = tx.CountAuthorized(ctx, sub.ID, 1, month, month.AddDate(0, 1, 0))
			return err
		}))
		c := counterFor(t, st, sub.ID, month)
		assert.Equal(t, authorized, c)
		assert.LessOrEqual(t, c, 3)
	}
}

func TestLookup(t *testing.T) {
	cache := memCache{}
	svc, st := newService(t, access.WithCodeCache(cache))
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))
	ctx := context.Background()

	got, err := svc.Lookup(ctx, sub.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
	assert.Equal(t, sub.ID, cache[sub.AccessCode])

	got, err = svc.Lookup(ctx, " "+sub.NFCCode+" ")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = svc.LookupAccessCode(ctx, sub.NFCCode)
	assert.ErrorIs(t, err, access.ErrCodeNotFound)

	got, err = svc.LookupNFCCode(ctx, sub.NFCCode)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = svc.Lookup(ctx, "")
	assert.ErrorIs(t, err, access.ErrCodeNotFound)

	res, err := svc.AuthorizeCode(ctx, sub.AccessCode, access.Request{ServiceID: 1, At: testutil.At(2024, 1, 15, 10)})
	require.NoError(t, err)
	assert.True(t, res.Authorized)
	assert.Equal(t, sub.ID, res.Subscription.ID)
}

// blockingCache держит Get, пока тест не отпустит release.
type blockingCache struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingCache) Get(_ context.Context, _ string) (int64, bool) {
	close(c.entered)
	<-c.release
	return 0, false
}

func (c *blockingCache) Set(context.Context, string, int64) {}

func TestSlowCacheDoesNotBlockAuthorize(t *testing.T) {
	cache := &blockingCache{entered: make(chan struct{}), release: make(chan struct{})}
	svc, st := newService(t, access.WithCodeCache(cache))
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	lookup := make(chan error, 1)
	go func() {
		_, err := svc.Lookup(context.Background(), sub.AccessCode)
		lookup <- err
	}()
	<-cache.entered

	done := make(chan access.Result, 1)
	go func() {
		res, _ := svc.Authorize(context.Background(), access.Request{
			SubscriptionID: sub.ID, ServiceID: 1, Method: ledger.MethodNFC, At: testutil.At(2024, 1, 15, 10),
		})
		done <- res
	}()

	select {
	case res := <-done:
		assert.True(t, res.Authorized)
	case <-time.After(2 * time.Second):
		t.Fatal("authorize waited for the code cache")
	}

	close(cache.release)
	require.NoError(t, <-lookup)
}

func TestLookupIgnoresStaleCacheEntry(t *testing.T) {
	_, st := newService(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 4))
	first := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))
	second := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))

	cache := memCache{first.AccessCode: second.ID}
	svc := access.NewService(st, access.NewEngine(time.UTC), slog.New(slog.NewTextHandler(io.Discard, nil)),
		access.WithCodeCache(cache))

	got, err := svc.Lookup(context.Background(), first.AccessCode)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.ID, cache[first.AccessCode])
}

func TestUsageAndToday(t *testing.T) {
	svc, st := newService(t)
	p := testutil.MonthlyPlan(1, 4)
	p.Services = append(p.Services, plans.IncludedService{ServiceID: 2, QuotaPerPeriod: 2, TotalPeriodCap: testutil.Ptr(1)})
	plan := testutil.CreatePlan(t, st, p)
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10))
	ctx := context.Background()
	at := testutil.At(2024, 1, 15, 10)

	authorize(t, svc, sub.ID, at, "")
	authorize(t, svc, sub.ID, at.Add(time.Hour), "")
	_, err := svc.Authorize(ctx, access.Request{SubscriptionID: sub.ID, ServiceID: 3, At: at})
	require.NoError(t, err)

	ov, err := svc.Usage(ctx, sub.ID, at)
	require.NoError(t, err)
	assert.False(t, ov.Expired)
	assert.Equal(t, 25, ov.DaysLeft)
	require.Len(t, ov.Services, 2)
	assert.Equal(t, access.ServiceUsage{
		ServiceID: 1, Included: 4, Used: 2, Remaining: 2, Percent: 50, PeriodStart: testutil.Date(2024, 1, 1),
	}, ov.Services[0])
	assert.Equal(t, 1, ov.Services[1].Remaining)

	stats, err := svc.Today(ctx, at)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Authorized)
	assert.Equal(t, 1, stats.Denied)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 0, stats.ExpiringSoon)

	recent, err := svc.Recent(ctx, at, 20)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, string(access.ReasonServiceNotIncluded), recent[1].Reason)

	soon, err := svc.Today(ctx, testutil.At(2024, 2, 5, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, soon.ExpiringSoon)
	assert.Zero(t, soon.Authorized)
}

func TestUsageWarnsAboutExtraPlatesOnSinglePlan(t *testing.T) {
	st := testutil.NewStore(t)
	var buf bytes.Buffer
	svc := access.NewService(st, access.NewEngine(time.UTC), slog.New(slog.NewTextHandler(&buf, nil)))

	p := testutil.MonthlyPlan(1, 4)
	p.PlateMode = plans.PlateSingle
	p.MaxPlates = 0
	plan := testutil.CreatePlan(t, st, p)
	sub := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 10), "AB123CD", "EF456GH")

	_, err := svc.Usage(context.Background(), sub.ID, testutil.At(2024, 1, 15, 10))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "plates over advisory limit")
	assert.Contains(t, buf.String(), "max_plates=1")
}
