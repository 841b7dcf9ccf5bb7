package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStart(t *testing.T) {
	tests := []struct {
		name string
		p    Periodicity
		day  time.Time
		want time.Time
	}{
		{"daily", Daily, date(2024, 1, 15), date(2024, 1, 15)},
		{"weekly wednesday", Weekly, date(2024, 1, 17), date(2024, 1, 15)},
		{"weekly monday", Weekly, date(2024, 1, 15), date(2024, 1, 15)},
		{"weekly sunday", Weekly, date(2024, 1, 21), date(2024, 1, 15)},
		{"weekly across year", Weekly, date(2025, 1, 1), date(2024, 12, 30)},
		{"monthly", Monthly, date(2024, 2, 29), date(2024, 2, 1)},
		{"quarterly q1", Quarterly, date(2024, 3, 31), date(2024, 1, 1)},
		{"quarterly q2", Quarterly, date(2024, 4, 1), date(2024, 4, 1)},
		{"quarterly q4", Quarterly, date(2024, 11, 20), date(2024, 10, 1)},
		{"semiannual first", Semiannual, date(2024, 6, 30), date(2024, 1, 1)},
		{"semiannual second", Semiannual, date(2024, 7, 1), date(2024, 7, 1)},
		{"annual", Annual, date(2024, 12, 31), date(2024, 1, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Start(tt.p, tt.day))
		})
	}
}

func TestStart_StableAndAdvancing(t *testing.T) {
	all := []Periodicity{Daily, Weekly, Monthly, Quarterly, Semiannual, Annual}
	day := date(2023, 1, 1)
	for i := 0; i < 800; i++ {
		for _, p := range all {
			s := Start(p, day)
			assert.Equal(t, s, Start(p, day), "%s %s", p, day)
			assert.False(t, s.After(day))
			assert.Equal(t, s, Start(p, s), "start of a period belongs to it")

			next := Next(p, day)
			assert.True(t, next.After(s), "%s %s", p, day)
			assert.True(t, Start(p, next).After(s))
			assert.Equal(t, next, Start(p, next))
		}
		day = day.AddDate(0, 0, 1)
	}
}

func TestDayAndWeekday(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	// 23:30 UTC 31 января: уже 1 февраля в Риме
	at := time.Date(2024, 1, 31, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, date(2024, 2, 1), Day(at, rome))
	assert.Equal(t, date(2024, 1, 31), Day(at, time.UTC))

	assert.Equal(t, 0, Weekday(date(2024, 1, 15)))
	assert.Equal(t, 5, Weekday(date(2024, 1, 20)))
	assert.Equal(t, 6, Weekday(date(2024, 1, 21)))

	mid := Midnight(date(2024, 2, 1), rome)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 0, 0, 0, time.UTC), mid.UTC())
}

func TestParse(t *testing.T) {
	p, err := Parse("quarterly")
	require.NoError(t, err)
	assert.Equal(t, Quarterly, p)

	_, err = Parse("fortnightly")
	assert.Error(t, err)

	assert.True(t, Weekly.ValidSubPeriod())
	assert.False(t, Annual.ValidSubPeriod())
}
