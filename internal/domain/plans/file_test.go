package plans

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/subgate/internal/domain/period"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
plans:
  - title: Парковка месяц
    price: "4500.00"
    plate_mode: single
    max_plates: 1
    reset: monthly
    duration_days: 30
    services:
      - service_id: 1
        quota_per_period: 20
        total_period_cap: 25
        sub_period_cap: 5
        sub_period_kind: weekly
    daily_access:
      - weekday: 5
        max_accesses: 1
  - title: Разовый день
    reset: daily
    duration_days: 1
    active: false
    renewal_notice_days: 0
    services:
      - service_id: 2
        quota_per_period: 1
`)

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, got, 2)

	p := got[0]
	assert.Equal(t, "Парковка месяц", p.Title)
	assert.Equal(t, "4500", p.Price.String())
	assert.True(t, p.Active)
	assert.Equal(t, PlateSingle, p.PlateMode)
	assert.Equal(t, period.Monthly, p.Reset)
	assert.Equal(t, 7, p.RenewalNoticeDays)
	require.Len(t, p.Services, 1)
	assert.Equal(t, 25, *p.Services[0].TotalPeriodCap)
	assert.Equal(t, period.Weekly, p.Services[0].SubPeriodKind)
	assert.Equal(t, []DailyAccess{{Weekday: 5, MaxAccesses: 1}}, p.DailyAccess)

	day := got[1]
	assert.False(t, day.Active)
	assert.Equal(t, PlateUnrestricted, day.PlateMode)
	assert.Zero(t, day.RenewalNoticeDays)
	assert.Nil(t, day.Services[0].SubPeriodCap)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"half sub-period": `
plans:
  - title: x
    reset: monthly
    duration_days: 30
    services:
      - service_id: 1
        quota_per_period: 1
        sub_period_cap: 1
`,
		"bad weekday": `
plans:
  - title: x
    reset: monthly
    duration_days: 30
    daily_access:
      - weekday: 7
        max_accesses: 1
`,
		"bad price": `
plans:
  - title: x
    price: abc
    reset: monthly
    duration_days: 30
`,
		"empty": `plans: []`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, body))
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}
