package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
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
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_auth_attempts_total",
			Help: "Sign-in attempts by session namespace, method and outcome.",
		},
		[]string{"namespace", "method", "outcome"},
	)

	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_authz_decisions_total",
			Help: "Authorization decisions by resource, action and result.",
		},
		[]string{"resource", "action", "decision"},
	)

	sessionsPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "learnhub_sessions_purged_total",
			Help: "Expired sessions removed by the janitor.",
		},
		[]string{"namespace"},
	)

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
			authAttempts, authzDecisions, sessionsPurged)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAuthAttempt counts a sign-in attempt.
func RecordAuthAttempt(namespace, method, outcome string) {
	authAttempts.WithLabelValues(namespace, method, outcome).Inc()
}

// RecordAuthzDecision counts an authorization decision.
func RecordAuthzDecision(resource, action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authzDecisions.WithLabelValues(resource, action, decision).Inc()
}

// RecordSessionsPurged adds n to the purge counter of a namespace.
func RecordSessionsPurged(namespace string, n int64) {
	if n > 0 {
		sessionsPurged.WithLabelValues(namespace).Add(float64(n))
	}
}

// Instrument measures throughput, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifier segments so label cardinality stays bounded.
// Segments following a collection name under /v1 are replaced by ":id".
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/v1/") {
		return path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if i == 0 || seg == "" {
			continue
		}
		if !isStaticSegment(seg) {
			segments[i] = ":id"
		}
	}
	return "/" + strings.Join(segments, "/")
}

var staticSegments = map[string]struct{}{
	"admin": {}, "auth": {}, "login": {}, "logout": {}, "register": {}, "external": {},
	"me": {}, "heartbeat": {}, "courses": {}, "categories": {}, "career-tracks": {},
	"cart": {}, "items": {}, "checkout": {}, "confirm": {}, "orders": {}, "enrollments": {},
	"users": {}, "roles": {}, "analytics": {}, "audit-logs": {}, "settings": {}, "info": {},
}

func isStaticSegment(seg string) bool {
	_, ok := staticSegments[seg]
	return ok
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
