package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "afk",
			Name:      "heartbeats_total",
			Help:      "Heartbeats sent to the reward API.",
		},
		[]string{"result"},
	)
	startAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "afk",
			Name:      "start_attempts_total",
			Help:      "Remote AFK start attempts.",
		},
		[]string{"result"},
	)
	statsFlushErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "afk",
			Name:      "stats_flush_errors_total",
			Help:      "Lifetime stats writes that failed.",
		},
	)
	notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "afk",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the queue was full.",
		},
	)
	sessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "afk",
			Name:      "sessions",
			Help:      "Registered sessions.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "afk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Admin API requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "afk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin API request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(heartbeats, startAttempts, statsFlushErrors, notificationsDropped, sessions, httpRequests, httpDuration)
	})
}

func RecordHeartbeat(ok bool) {
	RegisterMetrics()
	heartbeats.WithLabelValues(resultLabel(ok)).Inc()
}

func RecordStartAttempt(ok bool) {
	RegisterMetrics()
	startAttempts.WithLabelValues(resultLabel(ok)).Inc()
}

func RecordStatsFlushError() {
	RegisterMetrics()
	statsFlushErrors.Inc()
}

func RecordNotificationDropped() {
	RegisterMetrics()
	notificationsDropped.Inc()
}

func SetSessions(n int) {
	RegisterMetrics()
	sessions.Set(float64(n))
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func resultLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "fail"
}
