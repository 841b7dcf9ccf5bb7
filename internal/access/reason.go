package access

// Reason: код отказа. Терминал показывает его перевод, журнал хранит код как есть.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonSubscriptionSuspended Reason = "subscription_suspended"
	ReasonSubscriptionCancelled Reason = "subscription_cancelled"
	ReasonSubscriptionExpired   Reason = "subscription_expired"
	ReasonServiceNotIncluded    Reason = "service_not_included"
	ReasonPlateRequired         Reason = "plate_required"
	ReasonPlateNotAuthorized    Reason = "plate_not_authorized"
	ReasonPeriodQuotaExceeded   Reason = "period_quota_exceeded"
	ReasonDailyQuotaExceeded    Reason = "daily_quota_exceeded"
)

// Reasons: закрытый словарь отказов в порядке проверок.
var Reasons = []Reason{
	ReasonSubscriptionSuspended,
	ReasonSubscriptionCancelled,
	ReasonSubscriptionExpired,
	ReasonServiceNotIncluded,
	ReasonPlateRequired,
	ReasonPlateNotAuthorized,
	ReasonPeriodQuotaExceeded,
	ReasonDailyQuotaExceeded,
}

func (r Reason) Valid() bool {
	for _, v := range Reasons {
		if v == r {
			return true
		}
	}
	return false
}

func (r Reason) String() string { return string(r) }
