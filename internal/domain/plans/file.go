package plans

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Spok95/subgate/internal/domain/period"
)

type fileService struct {
	ServiceID      int64  `mapstructure:"service_id"`
	QuotaPerPeriod int    `mapstructure:"quota_per_period"`
	TotalPeriodCap *int   `mapstructure:"total_period_cap"`
	SubPeriodCap   *int   `mapstructure:"sub_period_cap"`
	SubPeriodKind  string `mapstructure:"sub_period_kind"`
}

type fileDaily struct {
	Weekday     int `mapstructure:"weekday"`
	MaxAccesses int `mapstructure:"max_accesses"`
}

type filePlan struct {
	Title             string        `mapstructure:"title"`
	Price             string        `mapstructure:"price"`
	Active            *bool         `mapstructure:"active"`
	PlateMode         string        `mapstructure:"plate_mode"`
	MaxPlates         int           `mapstructure:"max_plates"`
	Reset             string        `mapstructure:"reset"`
	DurationDays      int           `mapstructure:"duration_days"`
	AutoRenew         bool          `mapstructure:"auto_renew"`
	RenewalNoticeDays *int          `mapstructure:"renewal_notice_days"`
	Services          []fileService `mapstructure:"services"`
	DailyAccess       []fileDaily   `mapstructure:"daily_access"`
}

// LoadFile читает планы из YAML/JSON (ключ plans) и проверяет каждый.
func LoadFile(path string) ([]Plan, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var raw []filePlan
	if err := v.UnmarshalKey("plans", &raw); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: no plans in %s", ErrInvalidPlan, path)
	}

	out := make([]Plan, 0, len(raw))
	for i, fp := range raw {
		p, err := fp.plan()
		if err != nil {
			return nil, fmt.Errorf("plan #%d (%s): %w", i+1, fp.Title, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (fp filePlan) plan() (Plan, error) {
	p := Plan{
		Title:             fp.Title,
		Active:            true,
		PlateMode:         PlateMode(fp.PlateMode),
		MaxPlates:         fp.MaxPlates,
		Reset:             period.Periodicity(fp.Reset),
		DurationDays:      fp.DurationDays,
		AutoRenew:         fp.AutoRenew,
		RenewalNoticeDays: 7,
	}
	if fp.Active != nil {
		p.Active = *fp.Active
	}
	if fp.RenewalNoticeDays != nil {
		p.RenewalNoticeDays = *fp.RenewalNoticeDays
	}
	if p.PlateMode == "" {
		p.PlateMode = PlateUnrestricted
	}
	if fp.Price != "" {
		price, err := decimal.NewFromString(fp.Price)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: price %q", ErrInvalidPlan, fp.Price)
		}
		p.Price = price
	}
	for _, s := range fp.Services {
		p.Services = append(p.Services, IncludedService{
			ServiceID:      s.ServiceID,
			QuotaPerPeriod: s.QuotaPerPeriod,
			TotalPeriodCap: s.TotalPeriodCap,
			SubPeriodCap:   s.SubPeriodCap,
			SubPeriodKind:  period.Periodicity(s.SubPeriodKind),
		})
	}
	for _, d := range fp.DailyAccess {
		p.DailyAccess = append(p.DailyAccess, DailyAccess(d))
	}
	return p, p.Validate()
}
