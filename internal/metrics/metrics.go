// Package metrics holds the Prometheus collectors of the portal.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the portal collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	grpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "grpc",
			Name:      "calls_total",
			Help:      "Calls served on the ops port by method and status code.",
		},
		[]string{"method", "code"},
	)

	adapterFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "adapter",
			Name:      "failures_total",
			Help:      "Data access operations that degraded to an absent or empty result.",
		},
		[]string{"op"},
	)

	partialWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "adapter",
			Name:      "partial_writes_total",
			Help:      "Two-phase writes that left an orphan behind.",
		},
		[]string{"op"},
	)

	sessionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session manager operations by kind and result.",
		},
		[]string{"kind", "result"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "portal",
			Subsystem: "session",
			Name:      "managers",
			Help:      "Live session managers held by the HTTP server.",
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications handed to the notifier.",
		},
		[]string{"kind", "result"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		grpcCalls,
		adapterFailures,
		partialWrites,
		sessionEvents,
		activeSessions,
		notifications,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes Registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// GRPCCall counts a finished ops-port call.
func GRPCCall(method, code string) { grpcCalls.WithLabelValues(method, code).Inc() }

// AdapterFailure counts a fail-soft data access operation.
func AdapterFailure(op string) { adapterFailures.WithLabelValues(op).Inc() }

// PartialWrite counts a two-phase write that stopped after its first phase.
func PartialWrite(op string) { partialWrites.WithLabelValues(op).Inc() }

// SessionOp counts a session manager operation.
func SessionOp(kind string, err error) {
	sessionEvents.WithLabelValues(kind, result(err)).Inc()
}

// Notification counts a notifier delivery.
func Notification(kind string, err error) {
	notifications.WithLabelValues(kind, result(err)).Inc()
}

// ManagerOpened and ManagerClosed track the live manager gauge.
func ManagerOpened() { activeSessions.Inc() }

func ManagerClosed() { activeSessions.Dec() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Instrument records request count and latency per chi route pattern.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
