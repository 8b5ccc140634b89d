package wallets

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const (
	defaultEntryLimit = 50
	maxEntryLimit     = 200
)

// WalletService is the read/open surface of vendor wallets.
type WalletService interface {
	Open(ctx context.Context, vendorID uuid.UUID, currency enums.Currency) (*models.Wallet, error)
	Get(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	Entries(ctx context.Context, walletID int64, limit int) ([]models.WalletTransaction, error)
}

type openRequest struct {
	VendorID uuid.UUID `json:"vendor_id" validate:"required"`
	Currency string    `json:"currency" validate:"required,len=3"`
}

type walletResponse struct {
	*models.Wallet
	Available string `json:"available"`
}

func present(wallet *models.Wallet) walletResponse {
	return walletResponse{Wallet: wallet, Available: wallet.Available().StringFixed(2)}
}

// Open creates the vendor's single wallet.
func Open(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var req openRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		currency, err := enums.ParseCurrency(req.Currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}
		wallet, err := svc.Open(ctx, req.VendorID, currency)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, present(wallet))
	}
}

func Get(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := validators.ParseURLUUID(r, "vendorId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.Get(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, present(wallet))
	}
}

// Entries lists the most recent wallet movements.
func Entries(svc WalletService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		vendorID, err := validators.ParseURLUUID(r, "vendorId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultEntryLimit, 1, maxEntryLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		wallet, err := svc.Get(ctx, vendorID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entries, err := svc.Entries(ctx, wallet.ID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"wallet":  present(wallet),
			"entries": entries,
		})
	}
}
