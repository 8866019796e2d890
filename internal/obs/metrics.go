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
)

// Метрики токенов и входа
var (
	tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gatehouse_tokens_issued_total",
		Help: "Access/refresh token pairs issued.",
	})

	refreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_refresh_total",
			Help: "Refresh attempts by outcome.",
		},
		[]string{"result"},
	)

	loginTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_login_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"result"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatehouse_ready",
		Help: "1 when the last readiness probe passed.",
	})
)

var initOnce sync.Once

// Init registers metrics in the default registry. Safe to call repeatedly.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			tokensIssued, refreshTotal, loginTotal, ready,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenIssued counts one minted token pair.
func TokenIssued() { tokensIssued.Inc() }

// ObserveRefresh counts a refresh attempt with its outcome label.
func ObserveRefresh(result string) { refreshTotal.WithLabelValues(result).Inc() }

// ObserveLogin counts a login attempt with its outcome label.
func ObserveLogin(result string) { loginTotal.WithLabelValues(result).Inc() }

// SetReady records the last readiness probe result.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Instrument records RPS, latency and in-flight requests.
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

// CanonicalPath collapses identifier segments so the path label stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" || raw == "/" {
		return "/"
	}
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return raw
	}
	switch parts[1] {
	case "users":
		// /v1/users/me stays literal
		if parts[2] != "me" {
			parts[2] = ":id"
		}
	case "roles":
		if parts[2] == "by-name" && len(parts) > 3 {
			parts[3] = ":name"
		} else if parts[2] != "by-name" {
			parts[2] = ":id"
		}
	default:
		return raw
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter remembers the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
