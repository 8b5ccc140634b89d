package cashouts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type stubPayouts struct {
	requested   payouts.RequestCashoutInput
	executed    int64
	cancelledBy uuid.UUID
	filter      payouts.CashoutFilter
	err         error
}

func (s *stubPayouts) RequestCashout(ctx context.Context, input payouts.RequestCashoutInput) (*models.Cashout, error) {
	s.requested = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Cashout{ID: 1, VendorID: input.VendorID, Amount: input.Amount, Status: enums.CashoutStatusPending}, nil
}

func (s *stubPayouts) ExecutePayout(ctx context.Context, cashoutID int64) (*models.Payout, error) {
	s.executed = cashoutID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Payout{ID: 2, CashoutID: cashoutID, Status: enums.PayoutStatusProcessing}, nil
}

func (s *stubPayouts) CancelCashout(ctx context.Context, cashoutID int64, actorID uuid.UUID, reason string) (*models.Cashout, error) {
	s.cancelledBy = actorID
	if s.err != nil {
		return nil, s.err
	}
	return &models.Cashout{ID: cashoutID, Status: enums.CashoutStatusCancelled}, nil
}

func (s *stubPayouts) GetCashout(ctx context.Context, id int64) (*models.Cashout, error) {
	return &models.Cashout{ID: id}, s.err
}

func (s *stubPayouts) ListCashouts(ctx context.Context, filter payouts.CashoutFilter, params pagination.Params) (*payouts.CashoutPage, error) {
	s.filter = filter
	return &payouts.CashoutPage{}, s.err
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/cashouts", Request(svc, nil))
	r.Get("/api/v1/cashouts", List(svc, nil))
	r.Post("/api/v1/cashouts/{cashoutId}/execute", Execute(svc, nil))
	r.Post("/api/v1/cashouts/{cashoutId}/cancel", Cancel(svc, nil))
	return r
}

func withActor(req *http.Request, actor uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor, middleware.RoleVendor))
}

func TestRequestCashout(t *testing.T) {
	svc := &stubPayouts{}
	actor, vendor := uuid.New(), uuid.New()
	body := `{"vendor_id":"` + vendor.String() + `","amount":"250.75","bank_account_id":3}`
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cashouts", strings.NewReader(body)), actor))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.requested.ActorID != actor || svc.requested.BankAccountID != 3 {
		t.Fatalf("unexpected input %+v", svc.requested)
	}
	if !svc.requested.Amount.Equal(decimal.RequireFromString("250.75")) {
		t.Fatalf("unexpected amount %s", svc.requested.Amount)
	}
}

func TestRequestCashoutInsufficientBalance(t *testing.T) {
	svc := &stubPayouts{err: pkgerrors.New(pkgerrors.CodeInsufficientBalance, "available balance 50000.00 is below 60000.00")}
	body := `{"vendor_id":"` + uuid.NewString() + `","amount":"60000","bank_account_id":3}`
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cashouts", strings.NewReader(body)), uuid.New()))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INSUFFICIENT_BALANCE") {
		t.Fatalf("expected insufficient balance code in %s", rec.Body.String())
	}
}

func TestExecuteReturnsAccepted(t *testing.T) {
	svc := &stubPayouts{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cashouts/8/execute", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.executed != 8 {
		t.Fatalf("expected cashout 8, got %d", svc.executed)
	}
}

func TestCancelCashout(t *testing.T) {
	svc := &stubPayouts{}
	actor := uuid.New()
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cashouts/8/cancel", strings.NewReader(`{"reason":"wrong account"}`)), actor))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.cancelledBy != actor {
		t.Fatalf("expected actor %s, got %s", actor, svc.cancelledBy)
	}
}

func TestListRejectsUnknownStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubPayouts{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cashouts?status=lost", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc := &stubPayouts{}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cashouts?status=pending", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.filter.Status == nil || *svc.filter.Status != enums.CashoutStatusPending {
		t.Fatalf("unexpected filter %+v", svc.filter)
	}
}
