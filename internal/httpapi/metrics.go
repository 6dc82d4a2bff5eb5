package httpapi

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "visiond"
	metricsSubsystem = "http"

	reasonRateLimit = "download_rate_limit"
	reasonBusy      = "download_in_progress"
)

var routeLabels = []string{"route", "method", "code"}

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, routeLabels)

	requestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency. Event streams are observed when they close.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 30, 300},
	}, routeLabels)

	inflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "inflight_requests",
		Help:      "Requests currently being served, including open event streams.",
	}, []string{"route"})

	rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rejected_total",
		Help:      "Download requests refused before any work started (429, 409).",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestSeconds, inflight, rejectedTotal)
}

// statusRecorder remembers the status code written by the handler. It keeps
// Flush and Hijack reachable so streaming and websocket handlers work behind
// the middleware.
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("httpapi: response writer does not support hijacking")
	}
	sr.code = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// MetricsMiddleware records count, latency and in-flight requests per chi
// route pattern. It must run inside the router so the pattern is known.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeLabel(r)
		g := inflight.WithLabelValues(route)
		g.Inc()
		defer g.Dec()

		sr := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)

		labels := prometheus.Labels{"route": routeLabel(r), "method": r.Method, "code": strconv.Itoa(sr.code)}
		requestsTotal.With(labels).Inc()
		requestSeconds.With(labels).Observe(time.Since(start).Seconds())
	})
}

// routeLabel prefers the matched pattern so task kinds and model keys do not
// become label values. Unmatched requests share one label.
func routeLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
		return "unmatched"
	}
	return r.URL.Path
}

func countRejected(reason string) {
	rejectedTotal.WithLabelValues(reason).Inc()
}
