package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP transport metrics.
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
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Authentication business metrics.
var (
	registrationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_registrations_total",
		Help: "Number of accounts created.",
	})

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	authDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_authentication_duration_seconds",
		Help:    "Time spent authenticating credentials.",
		Buckets: prometheus.DefBuckets,
	})

	rateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	})

	resetRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_password_reset_requests_total",
		Help: "Forgot-password requests received.",
	})

	resetCompletionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_password_reset_completions_total",
		Help: "Password resets completed.",
	})
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Gatekeeper API build information.",
		},
		[]string{"version"},
	)
)

// Init registers all metrics in the default registry.
func Init(version string) {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		registrationsTotal, loginsTotal, authDuration,
		rateLimitedTotal, resetRequestsTotal, resetCompletionsTotal,
		buildInfo,
	)
	buildInfo.WithLabelValues(version).Set(1)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func IncRegistration()    { registrationsTotal.Inc() }
func IncLoginSuccess()    { loginsTotal.WithLabelValues("success").Inc() }
func IncLoginFailure()    { loginsTotal.WithLabelValues("failure").Inc() }
func IncRateLimited()     { rateLimitedTotal.Inc() }
func IncResetRequest()    { resetRequestsTotal.Inc() }
func IncResetCompletion() { resetCompletionsTotal.Inc() }

// ObserveAuthDuration records how long a credential check took.
func ObserveAuthDuration(d time.Duration) {
	authDuration.Observe(d.Seconds())
}

// CanonicalPath collapses per-user admin paths so metric label cardinality
// stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "admin" && parts[1] == "users" {
		parts[2] = ":username"
		return "/" + strings.Join(parts, "/")
	}
	return path
}

// Instrument wraps a handler with RPS, latency and in-flight measurements.
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

// statusWriter captures the response code written by the wrapped handler.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
