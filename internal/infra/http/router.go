package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Spok95/subgate/internal/access"
	"github.com/Spok95/subgate/internal/infra/auth"
	"github.com/Spok95/subgate/internal/lifecycle"
)

// HTTPRecorder: метрики запросов.
type HTTPRecorder interface {
	ObserveHTTP(method, route string, status int, took time.Duration)
}

type Deps struct {
	Access    *access.Service
	Lifecycle *lifecycle.Service
	Issuer    *auth.Issuer
	Log       *slog.Logger
	Metrics   HTTPRecorder
	// Gatherer для /metrics; nil = без эндпоинта.
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(d.Log, d.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	h := &handlers{access: d.Access, lifecycle: d.Lifecycle, log: d.Log}
	api := r.Group("/api/v1", auth.Middleware(d.Issuer))
	{
		api.GET("/stats/today", h.today)
		api.GET("/accesses/recent", h.recent)
		api.GET("/subscriptions/expiring", h.expiring)
		api.GET("/subscriptions/:code", h.lookup)
		api.GET("/subscriptions/:code/history", h.history)
		api.POST("/subscriptions/:code/access", auth.RequireRole(auth.RoleTerminal), h.authorize)

		admin := api.Group("/subscriptions/:code", auth.RequireRole(auth.RoleAdmin))
		admin.POST("/suspend", h.suspend)
		admin.POST("/resume", h.resume)
		admin.POST("/cancel", h.cancel)
		admin.POST("/renew", h.renew)
	}
	return r
}

const requestIDHeader = "X-Request-ID"

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *slog.Logger, m HTTPRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)
		if m != nil {
			m.ObserveHTTP(c.Request.Method, c.FullPath(), c.Writer.Status(), took)
		}
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took_ms", took.Milliseconds(),
			"request_id", c.GetString("request_id"),
		)
	}
}
