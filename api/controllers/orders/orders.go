package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalorders "github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

type lineRequest struct {
	ProductID    uuid.UUID          `json:"product_id" validate:"required"`
	Quantity     int                `json:"quantity" validate:"gt=0"`
	UnitPrice    decimal.Decimal    `json:"unit_price" validate:"gte=0"`
	Discount     decimal.Decimal    `json:"discount" validate:"gte=0"`
	Attributes   types.AttributeMap `json:"attributes,omitempty"`
	PreferredLot *string            `json:"preferred_lot,omitempty"`
}

type createRequest struct {
	CustomerID      uuid.UUID       `json:"customer_id" validate:"required"`
	VendorID        uuid.UUID       `json:"vendor_id" validate:"required"`
	Lines           []lineRequest   `json:"lines" validate:"required,min=1,dive"`
	Discount        decimal.Decimal `json:"discount" validate:"gte=0"`
	Currency        string          `json:"currency,omitempty"`
	ShippingAddress types.Address   `json:"shipping_address"`
	Note            *string         `json:"note,omitempty"`
}

type transitionRequest struct {
	Status  string `json:"status" validate:"required"`
	Reason  string `json:"reason,omitempty"`
	Restock bool   `json:"restock,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type refundRequest struct {
	Restock bool   `json:"restock"`
	Reason  string `json:"reason,omitempty"`
}

type lineQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,min=0"`
}

// Create opens an order with one vendor. Depending on the allocation policy
// stock is exported immediately or at confirmation.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		currency := enums.Currency("")
		if strings.TrimSpace(req.Currency) != "" {
			parsed, err := enums.ParseCurrency(req.Currency)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
			currency = parsed
		}

		lines := make([]internalorders.LineInput, 0, len(req.Lines))
		for _, line := range req.Lines {
			lines = append(lines, internalorders.LineInput{
				ProductID:    line.ProductID,
				Quantity:     line.Quantity,
				UnitPrice:    line.UnitPrice,
				Discount:     line.Discount,
				Attributes:   line.Attributes,
				PreferredLot: line.PreferredLot,
			})
		}

		order, err := svc.CreateOrder(ctx, internalorders.CreateOrderInput{
			CustomerID:      req.CustomerID,
			VendorID:        req.VendorID,
			Lines:           lines,
			Discount:        req.Discount,
			Currency:        currency,
			ShippingAddress: req.ShippingAddress,
			Note:            req.Note,
			ActorID:         actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func Get(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParseURLID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.GetOrder(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// List pages orders newest first, filtered by vendor, customer or status.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		vendorID, err := validators.ParseQueryUUID(r, "vendor_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		customerID, err := validators.ParseQueryUUID(r, "customer_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := internalorders.ListFilter{VendorID: vendorID, CustomerID: customerID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}

		list, err := svc.ListOrders(ctx, filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.ConfirmOrder(ctx, orderID, actorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// Transition moves an order along its lifecycle (processing, shipped, delivered).
func Transition(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req transitionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		to, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		order, err := svc.Transition(ctx, internalorders.TransitionInput{
			OrderID: orderID,
			To:      to,
			ActorID: actorID,
			Reason:  validators.SanitizeString(req.Reason, 500),
			Restock: req.Restock,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req reasonRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.CancelOrder(ctx, orderID, actorID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func Refund(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		order, err := svc.RefundOrder(ctx, internalorders.RefundInput{
			OrderID: orderID,
			ActorID: actorID,
			Restock: req.Restock,
			Reason:  validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// UpdateLine changes one line quantity; zero reverses and removes the line.
func UpdateLine(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, orderID, err := actorAndOrder(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		detailID, err := validators.ParseURLID(r, "detailId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req lineQuantityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		result, err := svc.UpdateLineQuantity(ctx, internalorders.UpdateLineInput{
			OrderID:  orderID,
			DetailID: detailID,
			Quantity: *req.Quantity,
			ActorID:  actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"order":         result.Order,
			"line_removed":  result.LineRemoved,
			"order_removed": result.OrderRemoved,
		})
	}
}

func actorAndOrder(r *http.Request) (uuid.UUID, int64, error) {
	actorID, err := middleware.RequireActorID(r.Context())
	if err != nil {
		return uuid.Nil, 0, err
	}
	orderID, err := validators.ParseURLID(r, "orderId")
	if err != nil {
		return uuid.Nil, 0, err
	}
	return actorID, orderID, nil
}
