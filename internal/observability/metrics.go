package observability

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

// Metrics collects Prometheus metrics for the HTTP surface and the ledger core.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reportDuration  *prometheus.HistogramVec
	reportLines     prometheus.Histogram
	postings        *prometheus.CounterVec
	postedRows      *prometheus.CounterVec
	ruleCache       *prometheus.CounterVec
}

// NewMetrics initialises the registry with HTTP and ledger collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abraq_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "abraq_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	reportDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "abraq_ledger_report_duration_seconds",
		Help:    "Time spent building account ledgers.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reportLines := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "abraq_ledger_report_lines",
		Help:    "Lines returned per ledger report.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abraq_voucher_postings_total",
		Help: "Voucher postings by kind and outcome.",
	}, []string{"kind", "outcome"})
	postedRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abraq_voucher_rows_total",
		Help: "Rows persisted by successful postings.",
	}, []string{"kind"})
	ruleCache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "abraq_rule_cache_requests_total",
		Help: "Rule snapshot cache lookups by result.",
	}, []string{"result"})
	registry.MustRegister(requests, duration, reportDuration, reportLines, postings, postedRows, ruleCache)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		reportDuration:  reportDuration,
		reportLines:     reportLines,
		postings:        postings,
		postedRows:      postedRows,
		ruleCache:       ruleCache,
	}
}

// Handler returns the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// ObserveReport records one ledger build.
func (m *Metrics) ObserveReport(d time.Duration, lines int, err error) {
	if m == nil {
		return
	}
	m.reportDuration.WithLabelValues(outcome(err)).Observe(d.Seconds())
	if err == nil {
		m.reportLines.Observe(float64(lines))
	}
}

// ObservePost records one voucher posting attempt.
func (m *Metrics) ObservePost(kind string, rows int, err error) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(kind, outcome(err)).Inc()
	if err == nil {
		m.postedRows.WithLabelValues(kind).Add(float64(rows))
	}
}

// ObserveRuleCache records a rule snapshot cache lookup.
func (m *Metrics) ObserveRuleCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.ruleCache.WithLabelValues(result).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrUnbalanced):
		return "unbalanced"
	case errors.Is(err, shared.ErrValidation):
		return "rejected"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConcurrency):
		return "conflict"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
