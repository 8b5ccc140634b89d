package stripewebhook

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	paymentwebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

const (
	source           = "stripe"
	metadataOrderID  = "order_id"
	metadataPayoutID = "payout_id"
)

type callbackHandler interface {
	HandlePaymentEvent(ctx context.Context, event paymentwebhook.PaymentEvent) (paymentwebhook.Outcome, error)
	HandlePayoutEvent(ctx context.Context, event paymentwebhook.PayoutEvent) (paymentwebhook.Outcome, error)
	Ignore(ctx context.Context, source, eventType string) paymentwebhook.Outcome
}

// Service translates verified Stripe events into payment and payout callbacks.
type Service struct {
	handler callbackHandler
}

func NewService(handler callbackHandler) (*Service, error) {
	if handler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "callback handler required")
	}
	return &Service{handler: handler}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (paymentwebhook.Outcome, error) {
	if event == nil || event.Data == nil {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded, stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		return s.handler.HandlePaymentEvent(ctx, paymentEventFromIntent(event, &intent))
	case stripe.EventTypePayoutPaid, stripe.EventTypePayoutFailed, stripe.EventTypePayoutCanceled:
		var p stripe.Payout
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payout event")
		}
		return s.handler.HandlePayoutEvent(ctx, payoutEventFromStripe(event, &p))
	default:
		return s.handler.Ignore(ctx, source, string(event.Type)), nil
	}
}

func paymentEventFromIntent(event *stripe.Event, intent *stripe.PaymentIntent) paymentwebhook.PaymentEvent {
	out := paymentwebhook.PaymentEvent{
		Source:           source,
		EventID:          event.ID,
		GatewayPaymentID: intent.ID,
		OrderID:          metadataInt(intent.Metadata, metadataOrderID),
		Amount:           decimal.New(intent.Amount, -2),
		Currency:         enums.Currency(strings.ToUpper(string(intent.Currency))),
		Status:           enums.PaymentEventSucceeded,
	}
	if event.Type == stripe.EventTypePaymentIntentPaymentFailed {
		out.Status = enums.PaymentEventFailed
		if intent.LastPaymentError != nil {
			out.FailureReason = intent.LastPaymentError.Msg
		}
	}
	return out
}

func payoutEventFromStripe(event *stripe.Event, p *stripe.Payout) paymentwebhook.PayoutEvent {
	status := payouts.MapStripePayoutStatus(p.Status)
	switch event.Type {
	case stripe.EventTypePayoutPaid:
		status = enums.PayoutStatusSucceeded
	case stripe.EventTypePayoutFailed, stripe.EventTypePayoutCanceled:
		status = enums.PayoutStatusFailed
	}
	reason := p.FailureMessage
	if reason == "" && event.Type == stripe.EventTypePayoutCanceled {
		reason = "payout canceled"
	}
	return paymentwebhook.PayoutEvent{
		Source:               source,
		EventID:              event.ID,
		GatewayTransactionID: p.ID,
		PayoutID:             metadataInt(p.Metadata, metadataPayoutID),
		Status:               status,
		FailureReason:        reason,
	}
}

func metadataInt(metadata map[string]string, key string) int64 {
	raw := strings.TrimSpace(metadata[key])
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
