package reports

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	internalreports "github.com/angelmondragon/marketledger-backend/internal/reports"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// Service answers read-only reporting queries.
type Service interface {
	VendorRevenue(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (*internalreports.VendorRevenue, error)
	StockSummary(ctx context.Context, productID uuid.UUID) (*internalreports.StockSummary, error)
	CashoutQueue(ctx context.Context, vendorID *uuid.UUID, limit int) (*internalreports.CashoutQueue, error)
}

// VendorRevenue reports settlement figures for ?from=&to= (defaults to the last month).
func VendorRevenue(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := validators.ParseURLUUID(r, "vendorId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		from, err := validators.ParseQueryTime(r, "from")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		to, err := validators.ParseQueryTime(r, "to")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		report, err := svc.VendorRevenue(ctx, vendorID, from, to)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

func StockSummary(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		productID, err := validators.ParseURLUUID(r, "productId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		summary, err := svc.StockSummary(ctx, productID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

// CashoutQueue lists open cashouts for operators, optionally for one vendor.
func CashoutQueue(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := validators.ParseQueryUUID(r, "vendor_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 500)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		queue, err := svc.CashoutQueue(ctx, vendorID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, queue)
	}
}
