package payouts

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgstripe "github.com/angelmondragon/marketledger-backend/pkg/stripe"
)

// PayoutRequest is what the gateway needs to move money to a bank account.
type PayoutRequest struct {
	PayoutID       int64
	CashoutID      int64
	Amount         decimal.Decimal
	Currency       enums.Currency
	Destination    string
	IdempotencyKey string
}

// PayoutSubmission is the gateway's acknowledgement of a payout.
type PayoutSubmission struct {
	ExternalID string
	Status     enums.PayoutStatus
}

// PayoutGateway submits transfers to the payment provider. Implementations
// must be safe to retry with the same idempotency key, and must return a
// *GatewayRejection only when the provider definitively refused the payout.
type PayoutGateway interface {
	SubmitPayout(ctx context.Context, req PayoutRequest) (*PayoutSubmission, error)
}

// GatewayRejection is a refusal the provider guarantees it did not act on.
// Any other submit error leaves the payout's outcome unknown.
type GatewayRejection struct {
	Reason string
	Err    error
}

func (e *GatewayRejection) Error() string {
	if e.Err != nil {
		return "payout rejected: " + e.Reason + ": " + e.Err.Error()
	}
	return "payout rejected: " + e.Reason
}

func (e *GatewayRejection) Unwrap() error { return e.Err }

// IsGatewayRejection reports whether err carries a *GatewayRejection.
func IsGatewayRejection(err error) bool {
	var rejection *GatewayRejection
	return errors.As(err, &rejection)
}

// ManualGateway records payouts that operations settle by bank transfer. The
// external id is derived from the payout so callbacks can find it.
type ManualGateway struct{}

func (ManualGateway) SubmitPayout(_ context.Context, req PayoutRequest) (*PayoutSubmission, error) {
	return &PayoutSubmission{
		ExternalID: fmt.Sprintf("manual_%d", req.PayoutID),
		Status:     enums.PayoutStatusProcessing,
	}, nil
}

type stripePayoutAPI func(ctx context.Context, params *stripe.PayoutCreateParams) (*stripe.Payout, error)

// StripeGateway creates Stripe payouts to the connected bank account.
type StripeGateway struct {
	create stripePayoutAPI
}

// NewStripeGateway binds the gateway to the client's own key and backend.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	api := client.API()
	if api == nil || api.V1Payouts == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{create: api.V1Payouts.Create}, nil
}

func (g *StripeGateway) SubmitPayout(ctx context.Context, req PayoutRequest) (*PayoutSubmission, error) {
	params := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(req.Amount.Shift(2).Round(0).IntPart()),
		Currency: stripe.String(strings.ToLower(string(req.Currency))),
	}
	if req.Destination != "" {
		params.Destination = stripe.String(req.Destination)
	}
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payout_id", fmt.Sprintf("%d", req.PayoutID))
	params.AddMetadata("cashout_id", fmt.Sprintf("%d", req.CashoutID))

	result, err := g.create(ctx, params)
	if err != nil {
		return nil, classifyStripeError(err)
	}
	return &PayoutSubmission{ExternalID: result.ID, Status: MapStripePayoutStatus(result.Status)}, nil
}

// classifyStripeError turns card and invalid-request refusals into a
// *GatewayRejection. Rate limits, idempotency conflicts, 5xx and transport
// errors stay ambiguous.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("create stripe payout: %w", err)
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
		stripeErr.HTTPStatusCode == http.StatusConflict,
		stripeErr.Type == stripe.ErrorTypeIdempotency:
		return fmt.Errorf("create stripe payout: %w", err)
	case stripeErr.Type == stripe.ErrorTypeCard,
		stripeErr.Type == stripe.ErrorTypeInvalidRequest,
		stripeErr.HTTPStatusCode >= 400 && stripeErr.HTTPStatusCode < 500:
		reason := string(stripeErr.Code)
		if reason == "" {
			reason = string(stripeErr.Type)
		}
		return &GatewayRejection{Reason: reason, Err: err}
	default:
		return fmt.Errorf("create stripe payout: %w", err)
	}
}

// MapStripePayoutStatus folds Stripe's payout states onto ours.
func MapStripePayoutStatus(status stripe.PayoutStatus) enums.PayoutStatus {
	switch status {
	case stripe.PayoutStatusPaid:
		return enums.PayoutStatusSucceeded
	case stripe.PayoutStatusFailed, stripe.PayoutStatusCanceled:
		return enums.PayoutStatusFailed
	case stripe.PayoutStatusInTransit:
		return enums.PayoutStatusProcessing
	default:
		return enums.PayoutStatusPending
	}
}
