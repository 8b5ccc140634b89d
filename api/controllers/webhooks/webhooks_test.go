package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	paymentwebhook "github.com/angelmondragon/marketledger-backend/internal/webhooks/payments"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

type fakeCallbackService struct {
	payment paymentwebhook.PaymentEvent
	payout  paymentwebhook.PayoutEvent
	outcome paymentwebhook.Outcome
	err     error
}

func (f *fakeCallbackService) HandlePaymentEvent(ctx context.Context, event paymentwebhook.PaymentEvent) (paymentwebhook.Outcome, error) {
	f.payment = event
	return f.outcome, f.err
}

func (f *fakeCallbackService) HandlePayoutEvent(ctx context.Context, event paymentwebhook.PayoutEvent) (paymentwebhook.Outcome, error) {
	f.payout = event
	return f.outcome, f.err
}

func TestPaymentsAcknowledgesReconciliationOutcome(t *testing.T) {
	svc := &fakeCallbackService{outcome: paymentwebhook.OutcomeReconciliation}
	body := `{"gateway_payment_id":"pay_1","order_id":7,"amount":"125.50","currency":"usd","status":"succeeded"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	Payments(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.payment.OrderID != 7 || svc.payment.GatewayPaymentID != "pay_1" {
		t.Fatalf("unexpected event %+v", svc.payment)
	}
	if svc.payment.Currency != enums.CurrencyUSD {
		t.Fatalf("expected normalized currency, got %q", svc.payment.Currency)
	}
	if svc.payment.Amount.StringFixed(2) != "125.50" {
		t.Fatalf("unexpected amount %s", svc.payment.Amount)
	}

	var envelope struct {
		Data ackResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Outcome != paymentwebhook.OutcomeReconciliation {
		t.Fatalf("unexpected outcome %q", envelope.Data.Outcome)
	}
}

func TestPaymentsRejectsUnknownStatus(t *testing.T) {
	svc := &fakeCallbackService{}
	body := `{"gateway_payment_id":"pay_1","order_id":7,"amount":"1","status":"maybe"}`
	rec := httptest.NewRecorder()
	Payments(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var envelope types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("unexpected code %s", envelope.Error.Code)
	}
}

func TestPayoutsForwardsCallback(t *testing.T) {
	svc := &fakeCallbackService{outcome: paymentwebhook.OutcomeDuplicate}
	body := `{"gateway_transaction_id":"po_9","payout_id":3,"status":"failed","failure_reason":"account closed"}`
	rec := httptest.NewRecorder()
	Payouts(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.payout.Status != enums.PayoutStatusFailed || svc.payout.PayoutID != 3 {
		t.Fatalf("unexpected event %+v", svc.payout)
	}
	if svc.payout.FailureReason != "account closed" {
		t.Fatalf("unexpected reason %q", svc.payout.FailureReason)
	}
}

func TestPayoutsReturnsRetryableErrorWhenQueueFails(t *testing.T) {
	svc := &fakeCallbackService{err: errors.New("db down")}
	body := `{"gateway_transaction_id":"po_9","status":"succeeded"}`
	rec := httptest.NewRecorder()
	Payouts(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts", strings.NewReader(body)))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
