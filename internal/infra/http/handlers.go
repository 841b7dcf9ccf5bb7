package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/domain/ledger"
	"github.com/Spok95/subgate/internal/domain/subscriptions"
	"github.com/Spok95/subgate/internal/infra/auth"
	"github.com/Spok95/subgate/internal/lifecycle"
	"github.com/Spok95/subgate/internal/storage"
)

type handlers struct {
	access    *access.Service
	lifecycle *lifecycle.Service
	log       *slog.Logger
}

type serviceJSON struct {
	ServiceID   int64  `json:"service_id"`
	Included    int    `json:"included"`
	Used        int    `json:"used"`
	Remaining   int    `json:"remaining"`
	Percent     int    `json:"percent"`
	PeriodStart string `json:"period_start"`
	DailyLimit  *int   `json:"daily_limit,omitempty"`
}

type subscriptionJSON struct {
	ID             int64         `json:"id"`
	CustomerID     int64         `json:"customer_id"`
	PlanID         int64         `json:"plan_id"`
	PlanTitle      string        `json:"plan_title,omitempty"`
	AccessCode     string        `json:"access_code"`
	Status         string        `json:"status"`
	ActivationDate string        `json:"activation_date"`
	ExpirationDate string        `json:"expiration_date"`
	LastAccessAt   *time.Time    `json:"last_access_at,omitempty"`
	Expired        bool          `json:"expired"`
	DaysLeft       int           `json:"days_left"`
	PlateMode      string        `json:"plate_mode,omitempty"`
	Plates         []string      `json:"plates"`
	Services       []serviceJSON `json:"services,omitempty"`
}

type eventJSON struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	ServiceID      int64     `json:"service_id"`
	At             time.Time `json:"at"`
	Plate          string    `json:"plate,omitempty"`
	Method         string    `json:"verification_method"`
	Authorized     bool      `json:"authorized"`
	Reason         string    `json:"denial_reason,omitempty"`
	Station        string    `json:"station,omitempty"`
}

func toSubscriptionJSON(s *subscriptions.Subscription) subscriptionJSON {
	return subscriptionJSON{
		ID:             s.ID,
		CustomerID:     s.CustomerID,
		PlanID:         s.PlanID,
		AccessCode:     s.AccessCode,
		Status:         string(s.Status),
		ActivationDate: s.ActivationDate.Format(time.DateOnly),
		ExpirationDate: s.ExpirationDate.Format(time.DateOnly),
		LastAccessAt:   s.LastAccessAt,
		Plates:         []string{},
	}
}

func toOverviewJSON(ov *access.Overview) subscriptionJSON {
	out := toSubscriptionJSON(ov.Subscription)
	out.PlanTitle = ov.Plan.Title
	out.PlateMode = string(ov.Plan.PlateMode)
	out.Expired = ov.Expired
	out.DaysLeft = ov.DaysLeft
	for _, p := range ov.Plates {
		if p.Active {
			out.Plates = append(out.Plates, p.Plate)
		}
	}
	for _, u := range ov.Services {
		out.Services = append(out.Services, serviceJSON{
			ServiceID:   u.ServiceID,
			Included:    u.Included,
			Used:        u.Used,
			Remaining:   u.Remaining,
			Percent:     u.Percent,
			PeriodStart: u.PeriodStart.Format(time.DateOnly),
			DailyLimit:  u.DailyLimit,
		})
	}
	return out
}

func toEventsJSON(evs []ledger.Event) []eventJSON {
	out := make([]eventJSON, 0, len(evs))
	for _, e := range evs {
		out = append(out, eventJSON{
			ID:             e.ID,
			SubscriptionID: e.SubscriptionID,
			ServiceID:      e.ServiceID,
			At:             e.At,
			Plate:          e.Plate,
			Method:         string(e.Method),
			Authorized:     e.Authorized,
			Reason:         e.Reason,
			Station:        e.Station,
		})
	}
	return out
}

// fail переводит системные ошибки в HTTP. Отказы в проходе сюда не попадают.
func (h *handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrCodeNotFound):
		h.log.Warn("code not found", "code", c.Param("code"), "request_id", c.GetString("request_id"))
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrNotRenewable),
		errors.Is(err, lifecycle.ErrPlanInactive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "err", err, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temporary failure, try again"})
	}
}

func (h *handlers) lookup(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.access.Lookup(ctx, c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ov, err := h.access.Usage(ctx, sub.ID, time.Time{})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toOverviewJSON(ov))
}

type accessRequest struct {
	ServiceID int64  `json:"service_id" binding:"required"`
	Plate     string `json:"plate"`
	Method    string `json:"verification_method"`
	Operator  string `json:"operator"`
}

type accessResponse struct {
	Authorized     bool   `json:"authorized"`
	Reason         string `json:"denial_reason,omitempty"`
	EventID        int64  `json:"event_id"`
	SubscriptionID int64  `json:"subscription_id"`
	Count          int    `json:"count"`
	Remaining      int    `json:"remaining"`
}

func (h *handlers) authorize(c *gin.Context) {
	var req accessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method, err := ledger.ParseMethod(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var station, operator string
	if claims, ok := auth.FromContext(c); ok {
		station, operator = claims.Station, claims.Operator
	}
	if req.Operator != "" {
		operator = req.Operator
	}

	res, err := h.access.AuthorizeCode(c.Request.Context(), c.Param("code"), access.Request{
		ServiceID: req.ServiceID,
		Plate:     req.Plate,
		Method:    method,
		Station:   station,
		Operator:  operator,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accessResponse{
		Authorized:     res.Authorized,
		Reason:         string(res.Reason),
		EventID:        res.EventID,
		SubscriptionID: res.Subscription.ID,
		Count:          res.Count,
		Remaining:      res.Remaining,
	})
}

func queryInt(c *gin.Context, key string, def, limit int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	return min(v, limit)
}

func (h *handlers) history(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.access.Lookup(ctx, c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	evs, err := h.access.History(ctx, sub.ID, queryInt(c, "limit", 50, 500))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription_id": sub.ID, "events": toEventsJSON(evs)})
}

func (h *handlers) recent(c *gin.Context) {
	evs, err := h.access.Recent(c.Request.Context(), time.Time{}, queryInt(c, "limit", 20, 200))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEventsJSON(evs)})
}

func (h *handlers) today(c *gin.Context) {
	st, err := h.access.Today(c.Request.Context(), time.Time{})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"day":                  st.Day.Format(time.DateOnly),
		"authorized":           st.Authorized,
		"denied":               st.Denied,
		"active_subscriptions": st.Active,
		"expiring_soon":        st.ExpiringSoon,
	})
}

func (h *handlers) expiring(c *gin.Context) {
	subs, err := h.lifecycle.Expiring(c.Request.Context(), time.Time{}, queryInt(c, "days", access.ExpiringSoonDays, 365))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]subscriptionJSON, 0, len(subs))
	for i := range subs {
		out = append(out, toSubscriptionJSON(&subs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

func (h *handlers) transition(c *gin.Context, fn func(*gin.Context, int64) error) {
	sub, err := h.access.Lookup(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := fn(c, sub.ID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription_id": sub.ID, "status": "ok"})
}

func (h *handlers) suspend(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id int64) error { return h.lifecycle.Suspend(c.Request.Context(), id) })
}

func (h *handlers) resume(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id int64) error { return h.lifecycle.Resume(c.Request.Context(), id) })
}

func (h *handlers) cancel(c *gin.Context) {
	h.transition(c, func(c *gin.Context, id int64) error { return h.lifecycle.Cancel(c.Request.Context(), id) })
}

func (h *handlers) renew(c *gin.Context) {
	ctx := c.Request.Context()
	sub, err := h.access.Lookup(ctx, c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	fresh, err := h.lifecycle.Renew(ctx, sub.ID, time.Time{})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := toSubscriptionJSON(fresh)
	c.JSON(http.StatusCreated, gin.H{"subscription": out, "nfc_code": fresh.NFCCode})
}
