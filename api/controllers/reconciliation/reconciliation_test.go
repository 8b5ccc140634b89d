package reconciliation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	internalreconciliation "github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type stubQueue struct {
	source     *enums.ReconciliationSource
	resolvedBy uuid.UUID
	note       string
	err        error
}

func (s *stubQueue) ListOpen(ctx context.Context, source *enums.ReconciliationSource, params pagination.Params) (*internalreconciliation.Page, error) {
	s.source = source
	return &internalreconciliation.Page{Items: []models.ReconciliationItem{{ID: 1, Source: enums.ReconciliationSourceSettlement}}}, s.err
}

func (s *stubQueue) Resolve(ctx context.Context, id int64, actorID uuid.UUID, note string) (*models.ReconciliationItem, error) {
	s.resolvedBy, s.note = actorID, note
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReconciliationItem{ID: id, Status: enums.ReconciliationStatusResolved}, nil
}

func newRouter(svc Queue) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/reconciliation/items", ListOpen(svc, nil))
	r.Post("/api/v1/reconciliation/items/{itemId}/resolve", Resolve(svc, nil))
	return r
}

func TestListOpenFiltersBySource(t *testing.T) {
	svc := &stubQueue{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/items?source=payout_callback", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.source == nil || *svc.source != enums.ReconciliationSourcePayoutCallback {
		t.Fatalf("unexpected source %v", svc.source)
	}
}

func TestListOpenRejectsUnknownSource(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubQueue{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reconciliation/items?source=email", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestResolveUsesActorAndNote(t *testing.T) {
	svc := &stubQueue{}
	actor := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/items/4/resolve", strings.NewReader(`{"note":" wallet opened manually "}`))
	req = req.WithContext(middleware.WithActor(req.Context(), actor, middleware.RoleOperator))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.resolvedBy != actor || svc.note != "wallet opened manually" {
		t.Fatalf("unexpected resolve %s %q", svc.resolvedBy, svc.note)
	}
}

func TestResolveAlreadyResolved(t *testing.T) {
	svc := &stubQueue{err: pkgerrors.New(pkgerrors.CodeInvalidTransition, "reconciliation item 4 is already resolved")}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reconciliation/items/4/resolve", strings.NewReader(`{"note":"dup"}`))
	req = req.WithContext(middleware.WithActor(req.Context(), uuid.New(), middleware.RoleOperator))
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}
