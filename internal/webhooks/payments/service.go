// Package paymentwebhook applies gateway payment and payout callbacks. The
// transport always acknowledges receipt; anything that cannot be applied is
// queued for reconciliation instead of being bounced back to the gateway.
package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const (
	paymentsConsumer = "payment-webhook"
	payoutsConsumer  = "payout-webhook"
)

// Outcome labels what happened to one callback.
type Outcome string

const (
	OutcomeApplied        Outcome = "applied"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeReconciliation Outcome = "reconciliation"
	OutcomeIgnored        Outcome = "ignored"
)

// PaymentEvent is a gateway's report on a customer payment.
type PaymentEvent struct {
	Source           string
	EventID          string
	GatewayPaymentID string
	OrderID          int64
	Amount           decimal.Decimal
	Currency         enums.Currency
	Status           enums.PaymentEventStatus
	FailureReason    string
}

// PayoutEvent is a gateway's report on a vendor payout.
type PayoutEvent struct {
	Source               string
	EventID              string
	GatewayTransactionID string
	PayoutID             int64
	Status               enums.PayoutStatus
	FailureReason        string
}

type paymentLedger interface {
	CompletePaymentByGateway(ctx context.Context, input ledger.GatewayPaymentInput) (*models.Transaction, error)
}

type payoutProcessor interface {
	HandlePayoutCallback(ctx context.Context, cb payouts.PayoutCallback) (*payouts.CallbackResult, error)
}

type orderReader interface {
	FindOrder(ctx context.Context, id int64) (*models.Order, error)
}

type reconciler interface {
	Enqueue(ctx context.Context, entry reconciliation.Entry) (*models.ReconciliationItem, error)
}

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type outcomeMetrics interface {
	Observe(source, outcome string)
}

// ServiceParams wires the webhook service.
type ServiceParams struct {
	Ledger         paymentLedger
	Payouts        payoutProcessor
	Orders         orderReader
	Reconciliation reconciler
	Idempotency    idempotencyGuard
	Metrics        outcomeMetrics
	Logger         *logger.Logger
}

// Service applies payment and payout callbacks.
type Service struct {
	ledger    paymentLedger
	payouts   payoutProcessor
	orders    orderReader
	reconcile reconciler
	guard     idempotencyGuard
	metrics   outcomeMetrics
	logg      *logger.Logger
}

// NewService validates params. Idempotency and Metrics are optional.
func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payouts processor required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Reconciliation == nil {
		return nil, fmt.Errorf("reconciliation queue required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		ledger:    params.Ledger,
		payouts:   params.Payouts,
		orders:    params.Orders,
		reconcile: params.Reconciliation,
		guard:     params.Idempotency,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// HandlePaymentEvent settles the order's payment entry. The returned error is
// non-nil only when the event could neither be applied nor queued, in which
// case the gateway should redeliver it.
func (s *Service) HandlePaymentEvent(ctx context.Context, event PaymentEvent) (Outcome, error) {
	source := sourceOr(event.Source, "generic")
	eventID := event.EventID
	if eventID == "" {
		eventID = event.GatewayPaymentID + ":" + string(event.Status)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"source":             source,
		"gateway_payment_id": event.GatewayPaymentID,
		"order_id":           event.OrderID,
	})

	seen, err := s.markProcessed(ctx, paymentsConsumer, eventID)
	if err != nil {
		return "", err
	}
	if seen {
		return s.finish(ctx, source, OutcomeDuplicate), nil
	}

	procErr := s.applyPayment(ctx, event)
	switch {
	case procErr == nil:
		return s.finish(ctx, source, OutcomeApplied), nil
	case pkgerrors.IsCode(procErr, pkgerrors.CodeDuplicateGatewayEvent):
		return s.finish(ctx, source, OutcomeDuplicate), nil
	}

	reference := event.GatewayPaymentID
	if reference == "" {
		reference = "order:" + strconv.FormatInt(event.OrderID, 10)
	}
	if err := s.queue(ctx, enums.ReconciliationSourcePaymentWebhook, reference, procErr, event); err != nil {
		s.forget(ctx, paymentsConsumer, eventID)
		return "", err
	}
	return s.finish(ctx, source, OutcomeReconciliation), nil
}

func (s *Service) applyPayment(ctx context.Context, event PaymentEvent) error {
	if event.OrderID <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "order id is required")
	}
	order, err := s.orders.FindOrder(ctx, event.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeNotFound, "order %d not found", event.OrderID)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	currency := event.Currency
	if currency == "" {
		currency = order.Currency
	}
	if currency != order.Currency {
		return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payment currency %s does not match order currency %s", currency, order.Currency)
	}
	_, err = s.ledger.CompletePaymentByGateway(ctx, ledger.GatewayPaymentInput{
		GatewayReference: event.GatewayPaymentID,
		OrderID:          order.ID,
		UserID:           order.CustomerID,
		Amount:           event.Amount,
		Currency:         currency,
		Status:           event.Status,
		FailureReason:    event.FailureReason,
	})
	return err
}

// HandlePayoutEvent forwards a payout callback to the payouts processor with
// the same acknowledgement contract as HandlePaymentEvent.
func (s *Service) HandlePayoutEvent(ctx context.Context, event PayoutEvent) (Outcome, error) {
	source := sourceOr(event.Source, "generic")
	eventID := event.EventID
	if eventID == "" {
		eventID = event.GatewayTransactionID + ":" + string(event.Status)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"source":                 source,
		"gateway_transaction_id": event.GatewayTransactionID,
		"payout_id":              event.PayoutID,
	})

	seen, err := s.markProcessed(ctx, payoutsConsumer, eventID)
	if err != nil {
		return "", err
	}
	if seen {
		return s.finish(ctx, source, OutcomeDuplicate), nil
	}

	result, procErr := s.payouts.HandlePayoutCallback(ctx, payouts.PayoutCallback{
		GatewayTransactionID: event.GatewayTransactionID,
		PayoutID:             event.PayoutID,
		Status:               event.Status,
		FailureReason:        event.FailureReason,
	})
	switch {
	case procErr == nil && result != nil && result.Duplicate:
		return s.finish(ctx, source, OutcomeDuplicate), nil
	case procErr == nil:
		return s.finish(ctx, source, OutcomeApplied), nil
	case pkgerrors.IsCode(procErr, pkgerrors.CodeIntegrityViolation):
		// The processor already queued it.
		return s.finish(ctx, source, OutcomeReconciliation), nil
	}

	reference := event.GatewayTransactionID
	if reference == "" {
		reference = "payout:" + strconv.FormatInt(event.PayoutID, 10)
	}
	if err := s.queue(ctx, enums.ReconciliationSourcePayoutCallback, reference, procErr, event); err != nil {
		s.forget(ctx, payoutsConsumer, eventID)
		return "", err
	}
	return s.finish(ctx, source, OutcomeReconciliation), nil
}

// Ignore records an event type the service does not act on.
func (s *Service) Ignore(ctx context.Context, source, eventType string) Outcome {
	return s.finish(s.logg.WithField(ctx, "event_type", eventType), sourceOr(source, "generic"), OutcomeIgnored)
}

func (s *Service) markProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	if s.guard == nil || eventID == "" {
		return false, nil
	}
	seen, err := s.guard.CheckAndMarkProcessed(ctx, consumer, eventID)
	if err != nil {
		// Redis is an optimisation; the ledger's unique gateway references
		// still reject replays.
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook.idempotency_unavailable")
		return false, nil
	}
	return seen, nil
}

func (s *Service) forget(ctx context.Context, consumer, eventID string) {
	if s.guard == nil || eventID == "" {
		return
	}
	if err := s.guard.Delete(ctx, consumer, eventID); err != nil {
		s.logg.Error(ctx, "webhook.idempotency_delete_failed", err)
	}
}

func (s *Service) queue(ctx context.Context, source enums.ReconciliationSource, reference string, cause error, payload any) error {
	if _, err := s.reconcile.Enqueue(ctx, reconciliation.Entry{
		Source:    source,
		Reference: reference,
		Err:       cause,
		Payload:   payload,
	}); err != nil {
		s.logg.Error(ctx, "webhook.reconciliation_enqueue_failed", err)
		return err
	}
	return nil
}

func (s *Service) finish(ctx context.Context, source string, outcome Outcome) Outcome {
	if s.metrics != nil {
		s.metrics.Observe(source, string(outcome))
	}
	if outcome == OutcomeDuplicate {
		s.logg.Info(ctx, "gateway.duplicate_ignored")
	} else {
		s.logg.Info(s.logg.WithField(ctx, "outcome", outcome), "webhook.processed")
	}
	return outcome
}

func sourceOr(source, fallback string) string {
	if source == "" {
		return fallback
	}
	return source
}
