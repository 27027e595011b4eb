package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/habitkit/habits/internal/logger"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habits_http_requests_total",
			Help: "Total number of HTTP requests by route, method, and status",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "habits_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	userRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habits_user_requests_total",
			Help: "Total number of authenticated requests per user",
		},
		[]string{"user_id", "method"},
	)

	authEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habits_auth_events_total",
			Help: "Total authentication events by type and result",
		},
		[]string{"event_type", "result", "provider"},
	)

	togglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "habits_toggles_total",
			Help: "Completion toggles by resulting state",
		},
		[]string{"action"},
	)

	registrationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "habits_registrations_total",
			Help: "Accounts created through the register form",
		},
	)

	activeHabitsPerUser = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "habits_active_habits_per_user",
			Help: "Number of active habits per user",
		},
		[]string{"user_id"},
	)
)

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routePattern labels requests by the matched chi pattern rather than the raw
// path, so habit ids do not explode the label space.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		statusCode := strconv.Itoa(wrapped.statusCode)
		endpoint := routePattern(r)

		httpRequestsTotal.WithLabelValues(endpoint, r.Method, statusCode).Inc()
		httpRequestDuration.WithLabelValues(endpoint, r.Method, statusCode).Observe(duration)
	})
}

func (s *Server) userAwareMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		if user, ok := userFromContext(r.Context()); ok {
			userRequestsTotal.WithLabelValues(strconv.FormatInt(user.UserID, 10), r.Method).Inc()
		}
	})
}

func RecordAuthEvent(eventType, result, provider string) {
	authEventsTotal.WithLabelValues(eventType, result, provider).Inc()
	logger.Debug("Recorded auth event", "type", eventType, "result", result, "provider", provider)
}

func RecordToggle(done bool) {
	action := "undone"
	if done {
		action = "done"
	}
	togglesTotal.WithLabelValues(action).Inc()
}

func UpdateActiveHabitsForUser(userID int64, count int) {
	activeHabitsPerUser.WithLabelValues(strconv.FormatInt(userID, 10)).Set(float64(count))
}
