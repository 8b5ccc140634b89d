package cashouts

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/middleware"
	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// Service is the cashout surface of the payouts processor.
type Service interface {
	RequestCashout(ctx context.Context, input payouts.RequestCashoutInput) (*models.Cashout, error)
	ExecutePayout(ctx context.Context, cashoutID int64) (*models.Payout, error)
	CancelCashout(ctx context.Context, cashoutID int64, actorID uuid.UUID, reason string) (*models.Cashout, error)
	GetCashout(ctx context.Context, id int64) (*models.Cashout, error)
	ListCashouts(ctx context.Context, filter payouts.CashoutFilter, params pagination.Params) (*payouts.CashoutPage, error)
}

type requestBody struct {
	VendorID      uuid.UUID       `json:"vendor_id" validate:"required"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	BankAccountID int64           `json:"bank_account_id" validate:"required,gt=0"`
}

type cancelBody struct {
	Reason string `json:"reason,omitempty"`
}

// Request reserves wallet funds for a withdrawal.
func Request(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req requestBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cashout, err := svc.RequestCashout(ctx, payouts.RequestCashoutInput{
			VendorID:      req.VendorID,
			Amount:        req.Amount,
			BankAccountID: req.BankAccountID,
			ActorID:       actorID,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, cashout)
	}
}

// Execute submits the payout for a pending cashout to the gateway.
func Execute(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cashoutID, err := validators.ParseURLID(r, "cashoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		payout, err := svc.ExecutePayout(ctx, cashoutID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, payout)
	}
}

func Cancel(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actorID, err := middleware.RequireActorID(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cashoutID, err := validators.ParseURLID(r, "cashoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var req cancelBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cashout, err := svc.CancelCashout(ctx, cashoutID, actorID, validators.SanitizeString(req.Reason, 500))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cashout)
	}
}

func Get(svc Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		cashoutID, err := validators.ParseURLID(r, "cashoutId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		cashout, err := svc.GetCashout(ctx, cashoutID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, cashout)
	}
}

func List(svc Service, logg *logger.Logger) http.HandlerFunc {
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
		filter := payouts.CashoutFilter{VendorID: vendorID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseCashoutStatus(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filter.Status = &status
		}
		page, err := svc.ListCashouts(ctx, filter, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
