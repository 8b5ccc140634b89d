package orders

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
	internalorders "github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

type stubOrderService struct {
	created    internalorders.CreateOrderInput
	transition internalorders.TransitionInput
	lineUpdate internalorders.UpdateLineInput
	filter     internalorders.ListFilter
	params     pagination.Params
	err        error
}

func (s *stubOrderService) CreateOrder(ctx context.Context, input internalorders.CreateOrderInput) (*models.Order, error) {
	s.created = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: 1, CustomerID: input.CustomerID, VendorID: input.VendorID, Status: enums.OrderStatusPending}, nil
}

func (s *stubOrderService) ConfirmOrder(ctx context.Context, orderID int64, actorID uuid.UUID) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: orderID, Status: enums.OrderStatusConfirmed}, nil
}

func (s *stubOrderService) Transition(ctx context.Context, input internalorders.TransitionInput) (*models.Order, error) {
	s.transition = input
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: input.OrderID, Status: input.To}, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, orderID int64, actorID uuid.UUID, reason string) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: enums.OrderStatusCancelled}, s.err
}

func (s *stubOrderService) RefundOrder(ctx context.Context, input internalorders.RefundInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, Status: enums.OrderStatusRefunded}, s.err
}

func (s *stubOrderService) UpdateLineQuantity(ctx context.Context, input internalorders.UpdateLineInput) (*internalorders.LineUpdateResult, error) {
	s.lineUpdate = input
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.LineUpdateResult{LineRemoved: input.Quantity == 0, OrderRemoved: input.Quantity == 0}, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.Order{ID: orderID}, nil
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter internalorders.ListFilter, params pagination.Params) (*internalorders.OrderList, error) {
	s.filter = filter
	s.params = params
	return &internalorders.OrderList{Orders: []models.Order{{ID: 5}}}, s.err
}

func newRouter(svc internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/orders", Create(svc, nil))
	r.Get("/api/v1/orders", List(svc, nil))
	r.Get("/api/v1/orders/{orderId}", Get(svc, nil))
	r.Post("/api/v1/orders/{orderId}/transition", Transition(svc, nil))
	r.Patch("/api/v1/orders/{orderId}/lines/{detailId}", UpdateLine(svc, nil))
	return r
}

func withActor(req *http.Request, actor uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), actor, middleware.RoleCustomer))
}

func TestCreateOrder(t *testing.T) {
	svc := &stubOrderService{}
	actor, customer, vendor, product := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	body := `{"customer_id":"` + customer.String() + `","vendor_id":"` + vendor.String() + `",
		"lines":[{"product_id":"` + product.String() + `","quantity":2,"unit_price":"19.99","attributes":{"size":"L","grams":250}}],
		"currency":"eur",
		"shipping_address":{"recipient":"Ada Byron","line1":"1 Main St","city":"Austin","country":"US"}}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), actor)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.created.ActorID != actor || svc.created.VendorID != vendor {
		t.Fatalf("unexpected input %+v", svc.created)
	}
	if svc.created.Currency != enums.CurrencyEUR {
		t.Fatalf("expected EUR, got %q", svc.created.Currency)
	}
	if len(svc.created.Lines) != 1 || svc.created.Lines[0].UnitPrice.StringFixed(2) != "19.99" {
		t.Fatalf("unexpected lines %+v", svc.created.Lines)
	}
	if _, ok := svc.created.Lines[0].Attributes["grams"]; !ok {
		t.Fatalf("expected attributes to be decoded")
	}
}

func TestCreateOrderValidatesBody(t *testing.T) {
	svc := &stubOrderService{}
	body := `{"customer_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `","lines":[],
		"shipping_address":{"recipient":"Ada Byron","line1":"1 Main St","city":"Austin","country":"US"}}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderRequiresActor(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubOrderService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestCreateOrderMapsStockUnavailable(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeStockUnavailable, "insufficient stock")}
	body := `{"customer_id":"` + uuid.NewString() + `","vendor_id":"` + uuid.NewString() + `",
		"lines":[{"product_id":"` + uuid.NewString() + `","quantity":6,"unit_price":"1"}],
		"shipping_address":{"recipient":"Ada Byron","line1":"1 Main St","city":"Austin","country":"US"}}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != string(pkgerrors.CodeStockUnavailable) {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestListOrdersParsesFilters(t *testing.T) {
	svc := &stubOrderService{}
	vendor := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?vendor_id="+vendor.String()+"&status=delivered&limit=10&cursor=abc", nil)
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.filter.VendorID == nil || *svc.filter.VendorID != vendor {
		t.Fatalf("unexpected vendor filter %+v", svc.filter)
	}
	if svc.filter.Status == nil || *svc.filter.Status != enums.OrderStatusDelivered {
		t.Fatalf("unexpected status filter %+v", svc.filter)
	}
	if svc.params.Limit != 10 || svc.params.Cursor != "abc" {
		t.Fatalf("unexpected params %+v", svc.params)
	}
}

func TestTransitionParsesTargetStatus(t *testing.T) {
	svc := &stubOrderService{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/orders/12/transition", strings.NewReader(`{"status":"Shipped"}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.transition.OrderID != 12 || svc.transition.To != enums.OrderStatusShipped {
		t.Fatalf("unexpected transition %+v", svc.transition)
	}
}

func TestUpdateLineAllowsZeroQuantity(t *testing.T) {
	svc := &stubOrderService{}
	req := withActor(httptest.NewRequest(http.MethodPatch, "/api/v1/orders/12/lines/4", strings.NewReader(`{"quantity":0}`)), uuid.New())
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.lineUpdate.DetailID != 4 || svc.lineUpdate.Quantity != 0 {
		t.Fatalf("unexpected update %+v", svc.lineUpdate)
	}
	if !strings.Contains(rec.Body.String(), `"line_removed":true`) {
		t.Fatalf("expected line_removed in body: %s", rec.Body.String())
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := &stubOrderService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
