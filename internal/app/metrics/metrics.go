package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fanventures",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fanventures",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "settlement",
			Name:      "outcomes_total",
			Help:      "Total number of payment outcomes processed.",
		},
		[]string{"outcome", "result"},
	)

	duplicateDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "settlement",
			Name:      "duplicate_deliveries_total",
			Help:      "Redelivered notifications ignored as idempotent no-ops.",
		},
	)

	fundingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "funding",
			Name:      "version_conflicts_total",
			Help:      "Funding updates retried after losing a version race.",
		},
	)

	venturesFunded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "funding",
			Name:      "ventures_funded_total",
			Help:      "Ventures that reached their funding goal.",
		},
	)

	inconsistencies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "funding",
			Name:      "inconsistencies_total",
			Help:      "Fatal inconsistencies routed to the operator alert path.",
		},
	)

	sweptInvestments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fanventures",
			Subsystem: "settlement",
			Name:      "stale_pending_cancelled_total",
			Help:      "Pending investments cancelled by the staleness sweeper.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		settlements,
		duplicateDeliveries,
		fundingConflicts,
		venturesFunded,
		inconsistencies,
		sweptInvestments,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordSettlement counts a processed payment outcome.
func RecordSettlement(outcome, result string) {
	settlements.WithLabelValues(outcome, result).Inc()
}

// RecordDuplicateDelivery counts a redelivered notification ignored as a no-op.
func RecordDuplicateDelivery() { duplicateDeliveries.Inc() }

// RecordFundingConflict counts a lost funding version race.
func RecordFundingConflict() { fundingConflicts.Inc() }

// RecordVentureFunded counts a venture crossing its goal.
func RecordVentureFunded() { venturesFunded.Inc() }

// RecordInconsistency counts a fatal inconsistency.
func RecordInconsistency() { inconsistencies.Inc() }

// RecordSweptInvestment counts a stale pending investment cancelled.
func RecordSweptInvestment() { sweptInvestments.Inc() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "ventures":
		if len(parts) == 1 {
			return "/ventures"
		}
		if len(parts) == 2 {
			return "/ventures/:id"
		}
		return "/ventures/:id/" + parts[2]
	case "portfolio":
		return "/portfolio/:supporter"
	default:
		return "/" + parts[0]
	}
}
