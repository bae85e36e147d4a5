package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"method", "path", "status"},
	)
)

// Метрики аутентификации
var (
	AuthLogins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Completed password checks by outcome path.",
		},
		[]string{"path"},
	)

	AuthLoginFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_login_failures_total",
		Help: "Rejected credential checks.",
	})

	AuthSignups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_signups_total",
			Help: "Created accounts by credential kind.",
		},
		[]string{"kind"},
	)

	AuthVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_verifications_total",
			Help: "Completed verification flows by type.",
		},
		[]string{"type"},
	)
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		AuthLogins, AuthLoginFailures, AuthSignups, AuthVerifications,
	)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CanonicalPath сворачивает идентификаторы в пути до плейсхолдеров,
// чтобы не раздувать кардинальность метрик.
func CanonicalPath(p string) string {
	if p == "" {
		return "/"
	}
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}

	switch {
	case strings.HasPrefix(p, "/v1/orgs/"):
		rest := strings.Split(strings.Trim(p[len("/v1/orgs/"):], "/"), "/")
		switch {
		case len(rest) == 1:
			return "/v1/orgs/:id"
		case len(rest) == 2 && rest[1] == "members":
			return "/v1/orgs/:id/members"
		case len(rest) == 3 && rest[1] == "members":
			return "/v1/orgs/:id/members/:userId"
		}
	case strings.HasPrefix(p, "/v1/invitations/"):
		rest := strings.Split(strings.Trim(p[len("/v1/invitations/"):], "/"), "/")
		switch {
		case len(rest) == 1 && rest[0] != "":
			return "/v1/invitations/:id"
		case len(rest) == 2:
			return "/v1/invitations/:id/" + rest[1]
		}
	case strings.HasPrefix(p, "/v1/auth/connections/"):
		return "/v1/auth/connections/:id"
	case strings.HasPrefix(p, "/v1/auth/passkeys/"):
		rest := strings.Trim(p[len("/v1/auth/passkeys/"):], "/")
		switch rest {
		case "register/begin", "register/finish", "login/begin", "login/finish", "":
			// фиксированные глаголы оставляем как есть
		default:
			return "/v1/auth/passkeys/:id"
		}
	}
	return p
}

// Обёртка для измерения RPS/latency/в полёте.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter — локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
