// Package webhooks exposes gateway callback endpoints. Every accepted event is
// acknowledged with 200; only an unreadable request or a failure to record
// the event for later reconciliation produces an error status.
package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/api/responses"
	"github.com/angelmondragon/marketledger-backend/api/validators"
	paymentwebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

// CallbackService applies normalized gateway callbacks.
type CallbackService interface {
	HandlePaymentEvent(ctx context.Context, event paymentwebhook.PaymentEvent) (paymentwebhook.Outcome, error)
	HandlePayoutEvent(ctx context.Context, event paymentwebhook.PayoutEvent) (paymentwebhook.Outcome, error)
}

type paymentRequest struct {
	Gateway          string          `json:"gateway"`
	EventID          string          `json:"event_id"`
	GatewayPaymentID string          `json:"gateway_payment_id"`
	OrderID          int64           `json:"order_id" validate:"required,gt=0"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status" validate:"required,oneof=succeeded failed"`
	FailureReason    string          `json:"failure_reason"`
}

type payoutRequest struct {
	Gateway              string `json:"gateway"`
	EventID              string `json:"event_id"`
	GatewayTransactionID string `json:"gateway_transaction_id" validate:"required"`
	PayoutID             int64  `json:"payout_id"`
	Status               string `json:"status" validate:"required,oneof=processing succeeded failed"`
	FailureReason        string `json:"failure_reason"`
}

type ackResponse struct {
	Outcome paymentwebhook.Outcome `json:"outcome"`
}

// Payments accepts the gateway-neutral payment callback.
func Payments(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var req paymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		currency := enums.Currency("")
		if raw := strings.TrimSpace(req.Currency); raw != "" {
			parsed, err := enums.ParseCurrency(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
				return
			}
			currency = parsed
		}

		outcome, err := svc.HandlePaymentEvent(ctx, paymentwebhook.PaymentEvent{
			Source:           validators.SanitizeString(req.Gateway, 32),
			EventID:          validators.SanitizeString(req.EventID, 255),
			GatewayPaymentID: validators.SanitizeString(req.GatewayPaymentID, 255),
			OrderID:          req.OrderID,
			Amount:           req.Amount,
			Currency:         currency,
			Status:           enums.PaymentEventStatus(req.Status),
			FailureReason:    validators.SanitizeString(req.FailureReason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment callback"))
			return
		}
		responses.WriteSuccess(w, ackResponse{Outcome: outcome})
	}
}

// Payouts accepts the gateway-neutral payout callback.
func Payouts(svc CallbackService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		var req payoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		outcome, err := svc.HandlePayoutEvent(ctx, paymentwebhook.PayoutEvent{
			Source:               validators.SanitizeString(req.Gateway, 32),
			EventID:              validators.SanitizeString(req.EventID, 255),
			GatewayTransactionID: validators.SanitizeString(req.GatewayTransactionID, 255),
			PayoutID:             req.PayoutID,
			Status:               enums.PayoutStatus(req.Status),
			FailureReason:        validators.SanitizeString(req.FailureReason, 500),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout callback"))
			return
		}
		responses.WriteSuccess(w, ackResponse{Outcome: outcome})
	}
}
