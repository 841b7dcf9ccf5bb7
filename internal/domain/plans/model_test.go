package plans

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/subgate/internal/domain/period"
)

func intPtr(v int) *int { return &v }

func validPlan() Plan {
	return Plan{
		Title:        "Lavaggio mensile",
		Price:        decimal.RequireFromString("49.90"),
		Active:       true,
		PlateMode:    PlateSingle,
		MaxPlates:    1,
		Reset:        period.Monthly,
		DurationDays: 30,
		Services: []IncludedService{
			{ServiceID: 1, QuotaPerPeriod: 4},
			{ServiceID: 2, QuotaPerPeriod: 10, SubPeriodCap: intPtr(3), SubPeriodKind: period.Weekly},
		},
		DailyAccess: []DailyAccess{{Weekday: 5, MaxAccesses: 1}},
	}
}

func TestPlan_Validate(t *testing.T) {
	p := validPlan()
	require.NoError(t, p.Validate())

	cases := map[string]func(p *Plan){
		"empty title":          func(p *Plan) { p.Title = "" },
		"bad plate mode":       func(p *Plan) { p.PlateMode = "some" },
		"bad reset":            func(p *Plan) { p.Reset = "hourly" },
		"zero duration":        func(p *Plan) { p.DurationDays = 0 },
		"negative price":       func(p *Plan) { p.Price = decimal.NewFromInt(-1) },
		"duplicate service":    func(p *Plan) { p.Services = append(p.Services, IncludedService{ServiceID: 1}) },
		"negative quota":       func(p *Plan) { p.Services[0].QuotaPerPeriod = -1 },
		"cap without kind":     func(p *Plan) { p.Services[0].SubPeriodCap = intPtr(2) },
		"kind without cap":     func(p *Plan) { p.Services[0].SubPeriodKind = period.Daily },
		"quarterly sub kind":   func(p *Plan) { p.Services[1].SubPeriodKind = period.Quarterly },
		"weekday out of range": func(p *Plan) { p.DailyAccess[0].Weekday = 7 },
		"duplicate weekday": func(p *Plan) {
			p.DailyAccess = append(p.DailyAccess, DailyAccess{Weekday: 5, MaxAccesses: 2})
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPlan()
			mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidPlan)
		})
	}
}

func TestPlan_Lookups(t *testing.T) {
	p := validPlan()

	s, ok := p.Service(2)
	require.True(t, ok)
	assert.Equal(t, 10, s.QuotaPerPeriod)

	_, ok = p.Service(99)
	assert.False(t, ok)

	limit, ok := p.DailyLimit(5)
	assert.True(t, ok)
	assert.Equal(t, 1, limit)

	_, ok = p.DailyLimit(0)
	assert.False(t, ok)

	assert.True(t, PlateMultiple.RequiresPlate())
	assert.False(t, PlateUnrestricted.RequiresPlate())
}

func TestPlan_PlateLimit(t *testing.T) {
	p := validPlan()
	p.MaxPlates = 3

	p.PlateMode = PlateSingle
	assert.Equal(t, 1, p.PlateLimit())

	p.PlateMode = PlateMultiple
	assert.Equal(t, 3, p.PlateLimit())

	p.PlateMode = PlateUnrestricted
	assert.Equal(t, 0, p.PlateLimit())
}
