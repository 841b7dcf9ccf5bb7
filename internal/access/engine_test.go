package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/subgate/internal/domain/counters"
	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
)

type fakeFacts struct {
	plan     *plans.Plan
	plates   map[string]bool
	count    int
	total    int
	accesses []time.Time // разрешённые проходы
	locked   []counters.Key
	planErr  error
}

func (f *fakeFacts) Plan(_ context.Context, id int64) (*plans.Plan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	if f.plan == nil || f.plan.ID != id {
		return nil, storage.ErrNotFound
	}
	return f.plan, nil
}

func (f *fakeFacts) HasActivePlate(_ context.Context, _ int64, plate string) (bool, error) {
	return f.plates[plate], nil
}

func (f *fakeFacts) LockCounter(_ context.Context, key counters.Key) (counters.Counter, error) {
	f.locked = append(f.locked, key)
	return counters.Counter{ID: 1, Key: key, Count: f.count}, nil
}

func (f *fakeFacts) TotalAccesses(context.Context, int64, int64) (int, error) {
	return f.total, nil
}

func (f *fakeFacts) CountAuthorized(_ context.Context, _, _ int64, from, to time.Time) (int, error) {
	n := 0
	for _, at := range f.accesses {
		if !at.Before(from) && at.Before(to) {
			n++
		}
	}
	return n, nil
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func ptr(v int) *int { return &v }

// baseline: все условия выполнены; каждый сценарий ломает ровно одно.
func baseline() (*fakeFacts, Input) {
	plan := &plans.Plan{
		ID:           7,
		Title:        "Парковка",
		Active:       true,
		PlateMode:    plans.PlateSingle,
		Reset:        period.Monthly,
		DurationDays: 30,
		Services:     []plans.IncludedService{{ServiceID: 1, QuotaPerPeriod: 4}},
		DailyAccess:  []plans.DailyAccess{{Weekday: 5, MaxAccesses: 1}}, // суббота
	}
	sub := &subscriptions.Subscription{
		ID:             3,
		PlanID:         7,
		ActivationDate: date(2024, 1, 10),
		ExpirationDate: date(2024, 2, 9),
		Status:         subscriptions.StatusActive,
	}
	f := &fakeFacts{plan: plan, plates: map[string]bool{"AB123CD": true}}
	in := Input{
		Subscription: sub,
		ServiceID:    1,
		Plate:        "AB123CD",
		Now:          time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC), // суббота
	}
	return f, in
}

func TestDecideAuthorizesBaseline(t *testing.T) {
	f, in := baseline()
	d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)

	require.NoError(t, err)
	assert.True(t, d.Authorized)
	assert.Equal(t, ReasonNone, d.Reason)
	assert.Equal(t, 4, d.Remaining)
	require.Len(t, f.locked, 1)
	assert.Equal(t, date(2024, 1, 1), f.locked[0].PeriodStart)
	assert.Equal(t, int64(3), f.locked[0].SubscriptionID)
}

func TestDecidePrecedence(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fakeFacts, in *Input)
		want   Reason
	}{
		{"suspended", func(_ *fakeFacts, in *Input) { in.Subscription.Status = subscriptions.StatusSuspended }, ReasonSubscriptionSuspended},
		{"cancelled", func(_ *fakeFacts, in *Input) { in.Subscription.Status = subscriptions.StatusCancelled }, ReasonSubscriptionCancelled},
		{"expired status", func(_ *fakeFacts, in *Input) { in.Subscription.Status = subscriptions.StatusExpired }, ReasonSubscriptionExpired},
		{"past expiration", func(_ *fakeFacts, in *Input) { in.Now = time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC) }, ReasonSubscriptionExpired},
		{"service not included", func(_ *fakeFacts, in *Input) { in.ServiceID = 2 }, ReasonServiceNotIncluded},
		{"no plate", func(_ *fakeFacts, in *Input) { in.Plate = "" }, ReasonPlateRequired},
		{"unknown plate", func(_ *fakeFacts, in *Input) { in.Plate = "AB999ZZ" }, ReasonPlateNotAuthorized},
		{"inactive plate", func(f *fakeFacts, _ *Input) { f.plates["AB123CD"] = false }, ReasonPlateNotAuthorized},
		{"quota used", func(f *fakeFacts, _ *Input) { f.count = 4 }, ReasonPeriodQuotaExceeded},
		{"daily cap", func(f *fakeFacts, _ *Input) {
			f.accesses = []time.Time{time.Date(2024, 1, 20, 8, 0, 0, 0, time.UTC)}
		}, ReasonDailyQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, in := baseline()
			tt.mutate(f, &in)

			d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
			require.NoError(t, err)
			assert.False(t, d.Authorized)
			assert.Equal(t, tt.want, d.Reason)
		})
	}
}

func TestDecideFirstFailureWins(t *testing.T) {
	f, in := baseline()
	in.Subscription.Status = subscriptions.StatusSuspended
	in.Now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	in.Plate = ""
	f.count = 100

	d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
	require.NoError(t, err)
	assert.Equal(t, ReasonSubscriptionSuspended, d.Reason)
	assert.Empty(t, f.locked, "counter must not be touched after an earlier denial")
}

func TestDecideUnrestrictedIgnoresPlate(t *testing.T) {
	f, in := baseline()
	f.plan.PlateMode = plans.PlateUnrestricted
	in.Plate = ""

	d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
	require.NoError(t, err)
	assert.True(t, d.Authorized)
}

func TestDecideZeroQuotaDenies(t *testing.T) {
	f, in := baseline()
	f.plan.Services[0].QuotaPerPeriod = 0

	d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
	require.NoError(t, err)
	assert.Equal(t, ReasonPeriodQuotaExceeded, d.Reason)
}

func TestDecideMostRestrictiveTier(t *testing.T) {
	t.Run("total cap", func(t *testing.T) {
		f, in := baseline()
		f.plan.Services[0].TotalPeriodCap = ptr(6)
		f.count = 1
		f.total = 6

		d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
		require.NoError(t, err)
		assert.Equal(t, ReasonPeriodQuotaExceeded, d.Reason)
	})

	t.Run("total cap leaves less than quota", func(t *testing.T) {
		f, in := baseline()
		f.plan.Services[0].TotalPeriodCap = ptr(6)
		f.count = 1
		f.total = 5

		d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
		require.NoError(t, err)
		assert.True(t, d.Authorized)
		assert.Equal(t, 1, d.Remaining)
	})

	t.Run("weekly sub-period", func(t *testing.T) {
		f, in := baseline()
		f.plan.DailyAccess = nil
		f.plan.Services[0].SubPeriodCap = ptr(2)
		f.plan.Services[0].SubPeriodKind = period.Weekly
		// неделя с понедельника 15.01
		f.accesses = []time.Time{
			time.Date(2024, 1, 12, 9, 0, 0, 0, time.UTC), // прошлая неделя
			time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC),
		}
		f.count = 3

		d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
		require.NoError(t, err)
		assert.Equal(t, ReasonPeriodQuotaExceeded, d.Reason)
	})

	t.Run("sub-period clipped to reset period", func(t *testing.T) {
		f, in := baseline()
		f.plan.DailyAccess = nil
		f.plan.Services[0].SubPeriodCap = ptr(1)
		f.plan.Services[0].SubPeriodKind = period.Weekly
		// неделя 29.01–04.02 пересекает границу месяца
		in.Now = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		f.accesses = []time.Time{time.Date(2024, 1, 30, 9, 0, 0, 0, time.UTC)}

		d, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
		require.NoError(t, err)
		assert.True(t, d.Authorized)
		assert.Equal(t, 1, d.Remaining)
	})
}

func TestDecideUsesEngineTimeZone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	f, in := baseline()
	f.plan.DailyAccess = nil
	f.plan.Reset = period.Daily
	// 22:30 UTC 31.01 = 01:30 01.02 по местному
	in.Now = time.Date(2024, 1, 31, 22, 30, 0, 0, time.UTC)

	d, err := NewEngine(loc).Decide(context.Background(), f, in)
	require.NoError(t, err)
	assert.True(t, d.Authorized)
	require.Len(t, f.locked, 1)
	assert.Equal(t, date(2024, 2, 1), f.locked[0].PeriodStart)

	in.Now = time.Date(2024, 2, 9, 21, 30, 0, 0, time.UTC) // уже 10.02 по местному
	d, err = NewEngine(loc).Decide(context.Background(), f, in)
	require.NoError(t, err)
	assert.Equal(t, ReasonSubscriptionExpired, d.Reason)
}

func TestDecideStorageErrorIsNotADenial(t *testing.T) {
	f, in := baseline()
	boom := errors.New("db down")
	f.planErr = boom

	_, err := NewEngine(time.UTC).Decide(context.Background(), f, in)
	assert.ErrorIs(t, err, boom)
}
