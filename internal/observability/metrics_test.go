package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/abraq/abraq-accounts/internal/accounting/shared"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesLedgerCollectors(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveReport(120*time.Millisecond, 14, nil)
	metrics.ObservePost("journal", 3, nil)
	metrics.ObservePost("journal", 0, shared.Unbalanced(decimal.NewFromInt(100), decimal.NewFromInt(99)))
	metrics.ObserveRuleCache(true)
	metrics.ObserveRuleCache(false)

	body := scrape(t, metrics)
	for _, want := range []string{
		`abraq_voucher_postings_total{kind="journal",outcome="ok"} 1`,
		`abraq_voucher_postings_total{kind="journal",outcome="unbalanced"} 1`,
		`abraq_voucher_rows_total{kind="journal"} 3`,
		`abraq_rule_cache_requests_total{result="hit"} 1`,
		`abraq_ledger_report_duration_seconds_count{outcome="ok"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics, got: %s", want, body)
		}
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/ledger/report")

	req := httptest.NewRequest(http.MethodGet, "/ledger/report", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, `abraq_http_requests_total{code="418",route="/ledger/report"} 1`) {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, `abraq_http_request_duration_seconds_bucket{route="/ledger/report"`) {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestOutcomeClassifiesErrors(t *testing.T) {
	cases := map[string]error{
		"ok":        nil,
		"rejected":  shared.Invalid(shared.ErrTooFewLines, ""),
		"not_found": &shared.NotFoundError{Entity: "account", Key: "Farmer:9"},
		"conflict":  &shared.ConcurrencyError{Kind: "journal", Number: "JBK/00001"},
		"error":     errors.New("boom"),
	}
	for want, err := range cases {
		if got := outcome(err); got != want {
			t.Fatalf("outcome(%v) = %s, want %s", err, got, want)
		}
	}
}
