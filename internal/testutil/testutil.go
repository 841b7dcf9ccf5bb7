// Package testutil: общие помощники для тестов на SQLite.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/subgate/internal/domain/period"
	"github.com/Spok95/subgate/internal/domain/plans"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/storage"
	"github.com/Spok95/subgate/internal/storage/sqlite"
)

// NewStore создаёт файл базы во временной папке и накатывает миграции.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "subgate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	return st
}

// Date: календарная дата как полночь UTC.
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// At: момент в UTC: дата и час.
func At(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func Ptr[T any](v T) *T { return &v }

// MonthlyPlan: месячный план без номеров с одной услугой и квотой quota.
func MonthlyPlan(serviceID int64, quota int) *plans.Plan {
	return &plans.Plan{
		Title:             "Безлимит месяц",
		Price:             decimal.NewFromInt(3000),
		Active:            true,
		PlateMode:         plans.PlateUnrestricted,
		MaxPlates:         1,
		Reset:             period.Monthly,
		DurationDays:      30,
		RenewalNoticeDays: 7,
		Services:          []plans.IncludedService{{ServiceID: serviceID, QuotaPerPeriod: quota}},
	}
}

func CreatePlan(t testing.TB, st storage.Store, p *plans.Plan) *plans.Plan {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.Validate())

	var out *plans.Plan
	require.NoError(t, st.InTx(ctx, func(tx storage.Tx) error {
		id, err := tx.CreatePlan(ctx, p)
		if err != nil {
			return err
		}
		out, err = tx.Plan(ctx, id)
		return err
	}))
	return out
}

var codeSeq atomic.Int64

// CreateSubscription заводит активный абонемент с уникальными кодами.
func CreateSubscription(t testing.TB, st storage.Store, plan *plans.Plan, activation time.Time, plates ...string) *subscriptions.Subscription {
	t.Helper()
	ctx := context.Background()

	n := codeSeq.Add(1)
	sub := &subscriptions.Subscription{
		CustomerID:     100 + n,
		PlanID:         plan.ID,
		AccessCode:     fmt.Sprintf("T%07d", n),
		NFCCode:        fmt.Sprintf("%032x", n),
		ActivationDate: activation,
		ExpirationDate: activation.AddDate(0, 0, plan.DurationDays),
		Status:         subscriptions.StatusActive,
	}
	require.NoError(t, st.InTx(ctx, func(tx storage.Tx) error {
		id, err := tx.CreateSubscription(ctx, sub)
		if err != nil {
			return err
		}
		sub.ID = id
		for _, p := range plates {
			if err := tx.AddPlate(ctx, id, subscriptions.NormalizePlate(p)); err != nil {
				return err
			}
		}
		return nil
	}))
	return sub
}

func SetStatus(t testing.TB, st storage.Store, id int64, status subscriptions.Status) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InTx(ctx, func(tx storage.Tx) error {
		return tx.SetStatus(ctx, id, status)
	}))
}
