package jobs_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/subgate/internal/domain/credentials"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/infra/logger"
	"github.com/Spok95/subgate/internal/jobs"
	"github.com/Spok95/subgate/internal/lifecycle"
	"github.com/Spok95/subgate/internal/storage"
	"github.com/Spok95/subgate/internal/testutil"
)

type recorder struct {
	mu      sync.Mutex
	expired int64
	failed  []string
}

func (r *recorder) Expired(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired += n
}

func (r *recorder) JobFailed(job string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, job)
}

type failing struct{}

func (failing) SweepExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db is down")
}

func TestSweepOnceExpiresOverdue(t *testing.T) {
	st := testutil.NewStore(t)
	plan := testutil.CreatePlan(t, st, testutil.MonthlyPlan(1, 5))
	old := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 1, 1))
	fresh := testutil.CreateSubscription(t, st, plan, testutil.Date(2024, 2, 20))

	log := logger.Discard()
	lc := lifecycle.NewService(st, credentials.New(0), time.UTC, log).
		WithClock(func() time.Time { return testutil.At(2024, 3, 5, 3) })
	rec := &recorder{}

	s, err := jobs.New("@daily", time.UTC, lc, rec, log)
	require.NoError(t, err)
	require.NoError(t, s.SweepOnce(context.Background()))
	assert.EqualValues(t, 1, rec.expired)

	ctx := context.Background()
	require.NoError(t, st.View(ctx, func(tx storage.Tx) error {
		got, err := tx.Subscription(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, subscriptions.StatusExpired, got.Status)

		got, err = tx.Subscription(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, subscriptions.StatusActive, got.Status)
		return nil
	}))

	// повторный проход ничего не меняет
	require.NoError(t, s.SweepOnce(context.Background()))
	assert.EqualValues(t, 1, rec.expired)
}

func TestSweepFailureCounted(t *testing.T) {
	rec := &recorder{}
	s, err := jobs.New("0 3 * * *", time.UTC, failing{}, rec, logger.Discard())
	require.NoError(t, err)

	assert.Error(t, s.SweepOnce(context.Background()))
	assert.Equal(t, []string{"expiry_sweep"}, rec.failed)
}

func TestBadSchedule(t *testing.T) {
	_, err := jobs.New("every tuesday", time.UTC, failing{}, nil, logger.Discard())
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	s, err := jobs.New("@hourly", time.UTC, failing{}, rec, logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
