package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

func TestLive(t *testing.T) {
	rec := httptest.NewRecorder()
	Live("test").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-MarketLedger-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}
}

func TestReadyReportsFailingDependency(t *testing.T) {
	deps := map[string]Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	}
	rec := httptest.NewRecorder()
	Ready("test", nil, deps).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dependency":"redis"`) {
		t.Fatalf("expected dependency detail, got %s", rec.Body.String())
	}
}

func TestReadyAllHealthy(t *testing.T) {
	rec := httptest.NewRecorder()
	Ready("test", nil, map[string]Pinger{"postgres": stubPinger{}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
