package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	chatRequestsTotal *prometheus.CounterVec

	upstreamCallTotal    *prometheus.CounterVec
	upstreamCallDuration *prometheus.HistogramVec
	upstreamErrorsTotal  *prometheus.CounterVec

	activeSessions      prometheus.Gauge
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram
	sessionsSweptTotal  prometheus.Counter
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			chatRequestsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_requests_total",
					Help: "Total chat requests by outcome.",
				},
				[]string{"status"},
			),
			upstreamCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "upstream_call_total",
					Help: "Total upstream completion calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			upstreamCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "upstream_call_duration_seconds",
					Help:    "Upstream completion call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			upstreamErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "upstream_errors_total",
					Help: "Total upstream errors by classified kind.",
				},
				[]string{"kind"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Number of live browser sessions in the store.",
				},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_load_duration_seconds",
					Help:    "Session state load duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "session_save_duration_seconds",
					Help:    "Session state save duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionsSweptTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_swept_total",
					Help: "Total expired sessions removed by the sweeper.",
				},
			),
		}

		prometheus.MustRegister(
			m.chatRequestsTotal,
			m.upstreamCallTotal,
			m.upstreamCallDuration,
			m.upstreamErrorsTotal,
			m.activeSessions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.sessionsSweptTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// MetricsHandler returns the /metrics endpoint handler.
func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordChatRequest(status string) {
	getMetrics().chatRequestsTotal.WithLabelValues(status).Inc()
}

func RecordUpstreamCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.upstreamCallTotal.WithLabelValues(provider, status).Inc()
	m.upstreamCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordUpstreamError(kind string) {
	getMetrics().upstreamErrorsTotal.WithLabelValues(kind).Inc()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

func RecordSessionsSwept(count int) {
	getMetrics().sessionsSweptTotal.Add(float64(count))
}
