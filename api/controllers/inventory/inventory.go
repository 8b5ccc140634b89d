package inventory

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalinventory "github.com/angelmondragon/marketledger-backend/internal/inventory"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// StockLedger is the batch side of the inventory.
type StockLedger interface {
	ReceiveBatch(ctx context.Context, input internalinventory.ReceiveBatchInput) (*models.BatchInventory, error)
	GetAvailable(ctx context.Context, productID uuid.UUID) (internalinventory.Availability, error)
	GetBatch(ctx context.Context, id int64) (*models.BatchInventory, error)
	RecordQualityCheck(ctx context.Context, input internalinventory.QualityCheckInput) (*models.BatchInventory, error)
}

// MovementRecorder writes manual export movements and refunds.
type MovementRecorder interface {
	RecordMovement(ctx context.Context, input internalinventory.MovementInput) (*models.ExportInventory, error)
	RefundMovement(ctx context.Context, input internalinventory.RefundInput) (*models.ExportInventory, error)
}

type receiveBatchRequest struct {
	ProductID         uuid.UUID       `json:"product_id" validate:"required"`
	VendorID          uuid.UUID       `json:"vendor_id" validate:"required"`
	LotNumber         string          `json:"lot_number" validate:"required,max=64"`
	Quantity          int             `json:"quantity" validate:"gt=0"`
	UnitCost          decimal.Decimal `json:"unit_cost" validate:"gte=0"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty"`
	ManufacturingDate *time.Time      `json:"manufacturing_date,omitempty"`
	QualityStatus     string          `json:"quality_status,omitempty"`
	Serials           []string        `json:"serials,omitempty" validate:"omitempty,dive,required,max=128"`
}

type qualityCheckRequest struct {
	Status string  `json:"status" validate:"required,oneof=passed failed"`
	Note   *string `json:"note,omitempty"`
}

type movementRequest struct {
	ProductID     uuid.UUID `json:"product_id" validate:"required"`
	LotOrSerial   string    `json:"lot_or_serial" validate:"required,max=128"`
	Quantity      int       `json:"quantity" validate:"gt=0"`
	Type          string    `json:"type" validate:"required"`
	OrderDetailID *int64    `json:"order_detail_id,omitempty"`
	Note          *string   `json:"note,omitempty"`
}

type refundMovementRequest struct {
	Quantity int  `json:"quantity" validate:"gt=0"`
	Restock  bool `json:"restock"`
}

type availabilityResponse struct {
	ProductID uuid.UUID         `json:"product_id"`
	Total     int               `json:"total"`
	Lots      map[string]int    `json:"lots"`
	Serials   map[string]string `json:"serials"`
}

// ReceiveBatch registers a received lot, optionally with one serial per unit.
func ReceiveBatch(svc StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req receiveBatchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		status := enums.QualityStatus("")
		if raw := strings.TrimSpace(req.QualityStatus); raw != "" {
			parsed, err := enums.ParseQualityStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid quality status"))
				return
			}
			status = parsed
		}

		batch, err := svc.ReceiveBatch(ctx, internalinventory.ReceiveBatchInput{
			ProductID:         req.ProductID,
			VendorID:          req.VendorID,
			LotNumber:         strings.TrimSpace(req.LotNumber),
			Quantity:          req.Quantity,
			UnitCost:          req.UnitCost,
			ExpiryDate:        req.ExpiryDate,
			ManufacturingDate: req.ManufacturingDate,
			QualityStatus:     status,
			Serials:           req.Serials,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, batch)
	}
}

func GetBatch(svc StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		batchID, err := validators.ParseURLID(r, "batchId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		batch, err := svc.GetBatch(ctx, batchID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

// QualityCheck records the inspection verdict on a pending batch.
func QualityCheck(svc StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		batchID, err := validators.ParseURLID(r, "batchId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req qualityCheckRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		batch, err := svc.RecordQualityCheck(ctx, internalinventory.QualityCheckInput{
			BatchID:   batchID,
			Status:    enums.QualityStatus(req.Status),
			CheckedBy: actorID,
			Note:      req.Note,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, batch)
	}
}

// Availability lists the exportable lots and serials of a product.
func Availability(svc StockLedger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		available, err := svc.GetAvailable(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, availabilityResponse{
			ProductID: productID,
			Total:     available.Total(),
			Lots:      available.Lots,
			Serials:   available.Serials,
		})
	}
}

// RecordMovement exports stock outside the order flow (damage, loss, returns).
func RecordMovement(svc MovementRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req movementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		movementType, err := enums.ParseMovementType(strings.ToLower(strings.TrimSpace(req.Type)))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement type"))
			return
		}
		movement, err := svc.RecordMovement(ctx, internalinventory.MovementInput{
			ProductID:     req.ProductID,
			LotOrSerial:   strings.TrimSpace(req.LotOrSerial),
			Quantity:      req.Quantity,
			Type:          movementType,
			OrderDetailID: req.OrderDetailID,
			ActorID:       actorID,
			Note:          req.Note,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, movement)
	}
}

func RefundMovement(svc MovementRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		movementID, err := validators.ParseURLID(r, "movementId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req refundMovementRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		movement, err := svc.RefundMovement(ctx, internalinventory.RefundInput{
			MovementID: movementID,
			Quantity:   req.Quantity,
			Restock:    req.Restock,
			ActorID:    actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, movement)
	}
}
