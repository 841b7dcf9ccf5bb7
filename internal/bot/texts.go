package bot

import (
	"fmt"
	"strings"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
)

var reasonTexts = map[access.Reason]string{
	access.ReasonSubscriptionSuspended: "абонемент приостановлен",
	access.ReasonSubscriptionCancelled: "абонемент отменён",
	access.ReasonSubscriptionExpired:   "срок абонемента истёк",
	access.ReasonServiceNotIncluded:    "услуга не входит в план",
	access.ReasonPlateRequired:         "нужен номер машины",
	access.ReasonPlateNotAuthorized:    "номер не привязан к абонементу",
	access.ReasonPeriodQuotaExceeded:   "лимит на период исчерпан",
	access.ReasonDailyQuotaExceeded:    "дневной лимит исчерпан",
}

func reasonText(r access.Reason) string {
	if t, ok := reasonTexts[r]; ok {
		return t
	}
	return string(r)
}

func statusText(s subscriptions.Status) string {
	switch s {
	case subscriptions.StatusActive:
		return "активен"
	case subscriptions.StatusSuspended:
		return "приостановлен"
	case subscriptions.StatusExpired:
		return "истёк"
	case subscriptions.StatusCancelled:
		return "отменён"
	}
	return string(s)
}

func formatResult(serviceID int64, res access.Result) string {
	if res.Authorized {
		return fmt.Sprintf("%s Проход разрешён (услуга %d). Использовано: %d, осталось: %d.",
			badge(true), serviceID, res.Count, res.Remaining)
	}
	return fmt.Sprintf("%s Отказ: %s.", badge(false), reasonText(res.Reason))
}

func formatCard(ov *access.Overview) string {
	sub := ov.Subscription
	var sb strings.Builder
	fmt.Fprintf(&sb, "Абонемент %s: %s\n", sub.AccessCode, ov.Plan.Title)
	fmt.Fprintf(&sb, "Статус: %s\n", statusText(sub.Status))
	fmt.Fprintf(&sb, "Действует с %s по %s", sub.ActivationDate.Format("02.01.2006"), sub.ExpirationDate.Format("02.01.2006"))
	if ov.Expired {
		sb.WriteString(" (недействителен)\n")
	} else {
		fmt.Fprintf(&sb, " (осталось %d дн.)\n", ov.DaysLeft)
	}

	var plates []string
	for _, p := range ov.Plates {
		if p.Active {
			plates = append(plates, p.Plate)
		}
	}
	if len(plates) > 0 {
		fmt.Fprintf(&sb, "Номера: %s\n", strings.Join(plates, ", "))
	}

	for _, s := range ov.Services {
		fmt.Fprintf(&sb, "Услуга %d: %d из %d, осталось %d", s.ServiceID, s.Used, s.Included, s.Remaining)
		if s.DailyLimit != nil {
			fmt.Fprintf(&sb, " (сегодня не больше %d)", *s.DailyLimit)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatDay(st access.DayStats, recent []ledger.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Сводка за %s\n", st.Day.Format("02.01.2006"))
	fmt.Fprintf(&sb, "Проходов: %d, отказов: %d\n", st.Authorized, st.Denied)
	fmt.Fprintf(&sb, "Активных абонементов: %d, заканчиваются за неделю: %d", st.Active, st.ExpiringSoon)
	if len(recent) > 0 {
		sb.WriteString("\n\nПоследние:")
		for _, e := range recent {
			fmt.Fprintf(&sb, "\n%s %s #%d услуга %d", e.At.Format("15:04"), badge(e.Authorized), e.SubscriptionID, e.ServiceID)
			if !e.Authorized {
				fmt.Fprintf(&sb, ": %s", reasonText(access.Reason(e.Reason)))
			}
		}
	}
	return sb.String()
}
