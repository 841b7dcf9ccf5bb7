// Package metrics: счётчики Prometheus для решений о проходе, HTTP и фоновых задач.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	decisions   *prometheus.CounterVec
	decisionDur prometheus.Histogram
	httpTotal   *prometheus.CounterVec
	httpDur     *prometheus.HistogramVec
	swept       prometheus.Counter
	jobErrors   *prometheus.CounterVec
}

// New регистрирует метрики в reg; nil = prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subgate",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Access decisions by outcome and denial reason.",
		}, []string{"outcome", "reason"}),
		decisionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "subgate",
			Subsystem: "access",
			Name:      "decision_duration_seconds",
			Help:      "Time spent in the authorize transaction.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		httpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subgate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the terminal API.",
		}, []string{"method", "route", "status"}),
		httpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "subgate",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "subgate",
			Subsystem: "jobs",
			Name:      "subscriptions_expired_total",
			Help:      "Subscriptions moved to expired by the sweeper.",
		}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "subgate",
			Subsystem: "jobs",
			Name:      "errors_total",
			Help:      "Background job failures.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.decisions, m.decisionDur, m.httpTotal, m.httpDur, m.swept, m.jobErrors)
	return m
}

func (m *Metrics) ObserveDecision(reason string, authorized bool, took time.Duration) {
	outcome := "denied"
	if authorized {
		outcome = "authorized"
	}
	m.decisions.WithLabelValues(outcome, reason).Inc()
	m.decisionDur.Observe(took.Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.httpTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDur.WithLabelValues(method, route).Observe(took.Seconds())
}

func (m *Metrics) Expired(n int64) { m.swept.Add(float64(n)) }

func (m *Metrics) JobFailed(job string) { m.jobErrors.WithLabelValues(job).Inc() }
