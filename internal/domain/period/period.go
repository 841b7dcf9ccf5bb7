package period

import (
	"fmt"
	"time"
)

// Periodicity: окно, по которому обнуляется квота.
type Periodicity string

const (
	Daily      Periodicity = "daily"
	Weekly     Periodicity = "weekly"
	Monthly    Periodicity = "monthly"
	Quarterly  Periodicity = "quarterly"
	Semiannual Periodicity = "semiannual"
	Annual     Periodicity = "annual"
)

func (p Periodicity) Valid() bool {
	switch p {
	case Daily, Weekly, Monthly, Quarterly, Semiannual, Annual:
		return true
	}
	return false
}

// ValidSubPeriod: подпериод лимита может быть только день/неделя/месяц.
func (p Periodicity) ValidSubPeriod() bool {
	return p == Daily || p == Weekly || p == Monthly
}

// Parse проверяет строку из конфига/БД.
func Parse(s string) (Periodicity, error) {
	p := Periodicity(s)
	if !p.Valid() {
		return "", fmt.Errorf("period: unknown periodicity %q", s)
	}
	return p, nil
}

// Day возвращает календарную дату момента t в зоне loc как полночь UTC.
// Все даты (активация, окончание, начало периода) храним в таком виде.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Midnight: начало календарного дня day в зоне loc (момент времени).
func Midnight(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Weekday: понедельник = 0 ... воскресенье = 6.
func Weekday(day time.Time) int {
	return (int(day.Weekday()) + 6) % 7
}

// Start возвращает дату начала периода, в который попадает day.
func Start(p Periodicity, day time.Time) time.Time {
	y, m, d := day.Date()
	switch p {
	case Weekly:
		return time.Date(y, m, d-Weekday(day), 0, 0, 0, 0, time.UTC)
	case Monthly:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case Quarterly:
		q := ((int(m)-1)/3)*3 + 1
		return time.Date(y, time.Month(q), 1, 0, 0, 0, 0, time.UTC)
	case Semiannual:
		if m <= time.June {
			return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		}
		return time.Date(y, time.July, 1, 0, 0, 0, 0, time.UTC)
	case Annual:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	// Daily и всё неизвестное: сам день
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Next: начало следующего периода после того, что начинается в start.
func Next(p Periodicity, start time.Time) time.Time {
	s := Start(p, start)
	switch p {
	case Weekly:
		return s.AddDate(0, 0, 7)
	case Monthly:
		return s.AddDate(0, 1, 0)
	case Quarterly:
		return s.AddDate(0, 3, 0)
	case Semiannual:
		return s.AddDate(0, 6, 0)
	case Annual:
		return s.AddDate(1, 0, 0)
	}
	return s.AddDate(0, 0, 1)
}
