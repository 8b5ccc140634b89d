package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketledger-backend/api/controllers/health"
	internalreconciliation "github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	paymentwebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/metrics"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubQueue struct {
	listed bool
}

func (s *stubQueue) ListOpen(context.Context, *enums.ReconciliationSource, pagination.Params) (*internalreconciliation.Page, error) {
	s.listed = true
	return &internalreconciliation.Page{Items: []models.ReconciliationItem{}}, nil
}

func (s *stubQueue) Resolve(_ context.Context, id int64, _ uuid.UUID, _ string) (*models.ReconciliationItem, error) {
	return &models.ReconciliationItem{ID: id, Status: enums.ReconciliationStatusResolved}, nil
}

type stubCallbacks struct {
	payments int
}

func (s *stubCallbacks) HandlePaymentEvent(context.Context, paymentwebhook.PaymentEvent) (paymentwebhook.Outcome, error) {
	s.payments++
	return paymentwebhook.OutcomeApplied, nil
}

func (s *stubCallbacks) HandlePayoutEvent(context.Context, paymentwebhook.PayoutEvent) (paymentwebhook.Outcome, error) {
	return paymentwebhook.OutcomeApplied, nil
}

func newTestRouter(p Params) http.Handler {
	p.Env = "test"
	p.Logger = logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	return NewRouter(p)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(Params{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHealthReadyReportsDependency(t *testing.T) {
	router := newTestRouter(Params{Pingers: map[string]health.Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	}})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "redis") {
		t.Fatalf("expected failing dependency in body got %s", resp.Body.String())
	}
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newTestRouter(Params{Gatherer: reg, Metrics: metrics.NewHTTPMetrics(reg)})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "marketledger_http_requests_total") {
		t.Fatalf("expected http request counter in metrics output")
	}
}

func TestAPIGroupRequiresActor(t *testing.T) {
	router := newTestRouter(Params{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without actor got %d", resp.Code)
	}
}

func TestReconciliationRequiresOperator(t *testing.T) {
	queue := &stubQueue{}
	router := newTestRouter(Params{Reconciliation: queue})

	vendor := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/items", nil)
	vendor.Header.Set("X-Actor-Id", uuid.NewString())
	vendor.Header.Set("X-Actor-Role", "vendor")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, vendor)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for vendor got %d", resp.Code)
	}
	if queue.listed {
		t.Fatalf("queue should not be read for a vendor")
	}

	operator := httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/items", nil)
	operator.Header.Set("X-Actor-Id", uuid.NewString())
	operator.Header.Set("X-Actor-Role", "operator")
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, operator)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for operator got %d", resp.Code)
	}
}

func TestCustomerCannotExecuteCashout(t *testing.T) {
	router := newTestRouter(Params{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cashouts/7/execute", nil)
	req.Header.Set("X-Actor-Id", uuid.NewString())
	req.Header.Set("X-Actor-Role", "customer")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestPaymentWebhookSkipsActorCheck(t *testing.T) {
	callbacks := &stubCallbacks{}
	router := newTestRouter(Params{Callbacks: callbacks})
	body := `{"gateway":"manual","event_id":"evt_1","order_id":12,"amount":"10.00","currency":"USD","status":"succeeded"}`
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if callbacks.payments != 1 {
		t.Fatalf("expected callback to run once got %d", callbacks.payments)
	}
}
