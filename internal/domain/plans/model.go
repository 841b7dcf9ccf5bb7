package plans

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/subgate/internal/domain/period"
)

type PlateMode string

const (
	PlateSingle       PlateMode = "single"
	PlateMultiple     PlateMode = "multiple"
	PlateUnrestricted PlateMode = "unrestricted"
)

func (m PlateMode) Valid() bool {
	return m == PlateSingle || m == PlateMultiple || m == PlateUnrestricted
}

// RequiresPlate: для single/multiple номер обязателен на входе.
func (m PlateMode) RequiresPlate() bool { return m != PlateUnrestricted }

var ErrInvalidPlan = errors.New("plans: invalid plan")

type Plan struct {
	ID                int64
	Title             string
	Price             decimal.Decimal
	Active            bool
	PlateMode         PlateMode
	MaxPlates         int // только подсказка для форм, движок не проверяет
	Reset             period.Periodicity
	DurationDays      int
	AutoRenew         bool
	RenewalNoticeDays int
	Services          []IncludedService
	DailyAccess       []DailyAccess
	CreatedAt         time.Time
}

// IncludedService: услуга в составе плана и её лимиты.
type IncludedService struct {
	ServiceID      int64
	QuotaPerPeriod int
	TotalPeriodCap *int               // на весь срок абонемента
	SubPeriodCap   *int               // дополнительный лимит на подпериод
	SubPeriodKind  period.Periodicity // пусто, если SubPeriodCap == nil
}

// DailyAccess: потолок проходов в конкретный день недели (0 = понедельник).
type DailyAccess struct {
	Weekday     int
	MaxAccesses int
}

func (p *Plan) Service(serviceID int64) (IncludedService, bool) {
	for _, s := range p.Services {
		if s.ServiceID == serviceID {
			return s, true
		}
	}
	return IncludedService{}, false
}

func (p *Plan) DailyLimit(weekday int) (int, bool) {
	for _, d := range p.DailyAccess {
		if d.Weekday == weekday {
			return d.MaxAccesses, true
		}
	}
	return 0, false
}

// PlateLimit: рекомендуемое число активных номеров, 0 = без ограничения.
// Для single это всегда 1, max_plates учитывается только для multiple.
func (p *Plan) PlateLimit() int {
	switch p.PlateMode {
	case PlateSingle:
		return 1
	case PlateMultiple:
		return p.MaxPlates
	}
	return 0
}

// Validate проверяет план перед сохранением.
func (p *Plan) Validate() error {
	if p.Title == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidPlan)
	}
	if !p.PlateMode.Valid() {
		return fmt.Errorf("%w: plate mode %q", ErrInvalidPlan, p.PlateMode)
	}
	if !p.Reset.Valid() {
		return fmt.Errorf("%w: reset periodicity %q", ErrInvalidPlan, p.Reset)
	}
	if p.DurationDays <= 0 {
		return fmt.Errorf("%w: duration must be > 0 days", ErrInvalidPlan)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidPlan)
	}
	seen := map[int64]bool{}
	for _, s := range p.Services {
		if seen[s.ServiceID] {
			return fmt.Errorf("%w: service %d listed twice", ErrInvalidPlan, s.ServiceID)
		}
		seen[s.ServiceID] = true
		if err := s.Validate(); err != nil {
			return err
		}
	}
	days := map[int]bool{}
	for _, d := range p.DailyAccess {
		if d.Weekday < 0 || d.Weekday > 6 {
			return fmt.Errorf("%w: weekday %d", ErrInvalidPlan, d.Weekday)
		}
		if days[d.Weekday] {
			return fmt.Errorf("%w: weekday %d listed twice", ErrInvalidPlan, d.Weekday)
		}
		days[d.Weekday] = true
		if d.MaxAccesses < 0 {
			return fmt.Errorf("%w: negative daily cap", ErrInvalidPlan)
		}
	}
	return nil
}

func (s IncludedService) Validate() error {
	if s.QuotaPerPeriod < 0 {
		return fmt.Errorf("%w: service %d: negative quota", ErrInvalidPlan, s.ServiceID)
	}
	if s.TotalPeriodCap != nil && *s.TotalPeriodCap < 0 {
		return fmt.Errorf("%w: service %d: negative total cap", ErrInvalidPlan, s.ServiceID)
	}
	// лимит подпериода и его тип задаются только вместе
	if (s.SubPeriodCap == nil) != (s.SubPeriodKind == "") {
		return fmt.Errorf("%w: service %d: sub-period cap and kind must be set together", ErrInvalidPlan, s.ServiceID)
	}
	if s.SubPeriodCap != nil {
		if *s.SubPeriodCap < 0 {
			return fmt.Errorf("%w: service %d: negative sub-period cap", ErrInvalidPlan, s.ServiceID)
		}
		if !s.SubPeriodKind.ValidSubPeriod() {
			return fmt.Errorf("%w: service %d: sub-period kind %q", ErrInvalidPlan, s.ServiceID, s.SubPeriodKind)
		}
	}
	return nil
}
