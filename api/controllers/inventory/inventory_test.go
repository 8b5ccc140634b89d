package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	internalinventory "github.com/angelmondragon/marketledger-backend/internal/inventory"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

type stubLedger struct {
	received internalinventory.ReceiveBatchInput
	checked  internalinventory.QualityCheckInput
	err      error
}

func (s *stubLedger) ReceiveBatch(ctx context.Context, input internalinventory.ReceiveBatchInput) (*models.BatchInventory, error) {
	s.received = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.BatchInventory{ID: 1, LotNumber: input.LotNumber, Quantity: input.Quantity, RemainingQuantity: input.Quantity}, nil
}

func (s *stubLedger) GetAvailable(ctx context.Context, productID uuid.UUID) (internalinventory.Availability, error) {
	return internalinventory.Availability{
		ProductID: productID,
		Lots:      map[string]int{"LOT-A": 4},
		Serials:   map[string]string{"SN001": "LOT-B"},
	}, s.err
}

func (s *stubLedger) GetBatch(ctx context.Context, id int64) (*models.BatchInventory, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.BatchInventory{ID: id}, nil
}

func (s *stubLedger) RecordQualityCheck(ctx context.Context, input internalinventory.QualityCheckInput) (*models.BatchInventory, error) {
	s.checked = input
	return &models.BatchInventory{ID: input.BatchID, QualityStatus: input.Status}, s.err
}

type stubRecorder struct {
	movement internalinventory.MovementInput
	refund   internalinventory.RefundInput
	err      error
}

func (s *stubRecorder) RecordMovement(ctx context.Context, input internalinventory.MovementInput) (*models.ExportInventory, error) {
	s.movement = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExportInventory{ID: 3, Quantity: input.Quantity, MovementType: input.Type}, nil
}

func (s *stubRecorder) RefundMovement(ctx context.Context, input internalinventory.RefundInput) (*models.ExportInventory, error) {
	s.refund = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.ExportInventory{ID: input.MovementID, RefundQuantity: input.Quantity}, nil
}

func newRouter(ledger StockLedger, recorder MovementRecorder) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/inventory/batches", ReceiveBatch(ledger, nil))
	r.Get("/api/v1/inventory/batches/{batchId}", GetBatch(ledger, nil))
	r.Post("/api/v1/inventory/batches/{batchId}/quality-check", QualityCheck(ledger, nil))
	r.Get("/api/v1/inventory/products/{productId}/availability", Availability(ledger, nil))
	r.Post("/api/v1/inventory/movements", RecordMovement(recorder, nil))
	r.Post("/api/v1/inventory/movements/{movementId}/refund", RefundMovement(recorder, nil))
	return r
}

func withActor(req *http.Request, actor uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor, middleware.RoleVendor))
}

func TestReceiveBatchPassesSerials(t *testing.T) {
	ledger := &stubLedger{}
	body := `{"product_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `","lot_number":" LOT-1 ",
		"quantity":2,"unit_cost":"3.10","quality_status":"not_required","serials":["SN001","SN002"],
		"expiry_date":"2027-01-01T00:00:00Z"}`
	rec := httptest.NewRecorder()
	newRouter(ledger, &stubRecorder{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/batches", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ledger.received.LotNumber != "LOT-1" || len(ledger.received.Serials) != 2 {
		t.Fatalf("unexpected input %+v", ledger.received)
	}
	if ledger.received.QualityStatus != enums.QualityStatusNotRequired {
		t.Fatalf("unexpected quality status %q", ledger.received.QualityStatus)
	}
	if ledger.received.ExpiryDate == nil {
		t.Fatalf("expected expiry date")
	}
}

func TestReceiveBatchRejectsUnknownQualityStatus(t *testing.T) {
	body := `{"product_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `","lot_number":"L","quantity":1,"unit_cost":"1","quality_status":"great"}`
	rec := httptest.NewRecorder()
	newRouter(&stubLedger{}, &stubRecorder{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/inventory/batches", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAvailabilityIncludesTotal(t *testing.T) {
	product := uuid.New()
	rec := httptest.NewRecorder()
	newRouter(&stubLedger{}, &stubRecorder{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/products/"+product.String()+"/availability", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var envelope struct {
		Data availabilityResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Total != 5 || envelope.Data.ProductID != product {
		t.Fatalf("unexpected availability %+v", envelope.Data)
	}
}

func TestQualityCheckUsesActor(t *testing.T) {
	ledger := &stubLedger{}
	actor := uuid.New()
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/inventory/batches/9/quality-check", strings.NewReader(`{"status":"failed"}`)), actor)
	rec := httptest.NewRecorder()
	newRouter(ledger, &stubRecorder{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if ledger.checked.BatchID != 9 || ledger.checked.CheckedBy != actor || ledger.checked.Status != enums.QualityStatusFailed {
		t.Fatalf("unexpected check %+v", ledger.checked)
	}
}

func TestRecordMovementMapsSerialAlreadyExported(t *testing.T) {
	recorder := &stubRecorder{err: pkgerrors.New(pkgerrors.CodeSerialAlreadyExported, "serial SN001 already exported")}
	body := `{"product_id":"` + uuid.NewString() + `","lot_or_serial":"SN001","quantity":1,"type":"sale"}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(&stubLedger{}, recorder).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if recorder.movement.Type != enums.MovementTypeSale || recorder.movement.LotOrSerial != "SN001" {
		t.Fatalf("unexpected movement %+v", recorder.movement)
	}
}

func TestRefundMovementMapsOverRefund(t *testing.T) {
	recorder := &stubRecorder{err: pkgerrors.New(pkgerrors.CodeOverRefund, "refund exceeds exported quantity")}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/inventory/movements/7/refund", strings.NewReader(`{"quantity":5,"restock":true}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(&stubLedger{}, recorder).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if recorder.refund.MovementID != 7 || !recorder.refund.Restock {
		t.Fatalf("unexpected refund %+v", recorder.refund)
	}
}
