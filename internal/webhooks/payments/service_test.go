package paymentwebhook

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/orders"
	"github.com/angelmondragon/marketledger-backend/internal/payouts"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

var testNow = time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)

type memoryGuard struct {
	mu      sync.Mutex
	seen    map[string]bool
	deleted []string
	err     error
}

func (g *memoryGuard) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	key := consumer + ":" + eventID
	if g.seen[key] {
		return true, nil
	}
	g.seen[key] = true
	return false, nil
}

func (g *memoryGuard) Delete(_ context.Context, consumer, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, consumer+":"+eventID)
	g.deleted = append(g.deleted, consumer+":"+eventID)
	return nil
}

type recordingMetrics struct {
	outcomes []string
}

func (m *recordingMetrics) Observe(source, outcome string) {
	m.outcomes = append(m.outcomes, source+"/"+outcome)
}

type stubPayouts struct {
	result *payouts.CallbackResult
	err    error
	calls  []payouts.PayoutCallback
}

func (s *stubPayouts) HandlePayoutCallback(_ context.Context, cb payouts.PayoutCallback) (*payouts.CallbackResult, error) {
	s.calls = append(s.calls, cb)
	return s.result, s.err
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, reconciliation.Entry) (*models.ReconciliationItem, error) {
	return nil, errors.New("queue down")
}

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	ledger  ledger.Service
	guard   *memoryGuard
	metrics *recordingMetrics
	payouts *stubPayouts
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard})
	clock := func() time.Time { return testNow }

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, logg, enums.CurrencyUSD, clock)
	require.NoError(t, err)
	queue, err := reconciliation.NewService(reconciliation.NewRepository(conn), client, outbox.NewService(outbox.NewRepository(conn), logg), logg, nil, clock)
	require.NoError(t, err)

	f := fixture{
		conn:    conn,
		ledger:  ledgerSvc,
		guard:   &memoryGuard{},
		metrics: &recordingMetrics{},
		payouts: &stubPayouts{result: &payouts.CallbackResult{}},
	}
	f.svc, err = NewService(ServiceParams{
		Ledger:         ledgerSvc,
		Payouts:        f.payouts,
		Orders:         orders.NewRepository(conn),
		Reconciliation: queue,
		Idempotency:    f.guard,
		Metrics:        f.metrics,
		Logger:         logg,
	})
	require.NoError(t, err)
	return f
}

func (f fixture) pendingOrder(t *testing.T, total string) *models.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	order := &models.Order{
		CustomerID:      uuid.New(),
		VendorID:        uuid.New(),
		Status:          enums.OrderStatusPending,
		Subtotal:        amount,
		Discount:        decimal.Zero,
		Total:           amount,
		Currency:        enums.CurrencyUSD,
		ShippingAddress: types.Address{Recipient: "Grace Hopper", Line1: "9 Navy Rd", City: "Arlington", Country: "US"},
	}
	require.NoError(t, f.conn.Create(order).Error)
	orderID := order.ID
	_, err := f.ledger.Append(context.Background(), ledger.AppendInput{
		Type:    enums.TransactionTypePaymentIn,
		Amount:  amount,
		UserID:  order.CustomerID,
		OrderID: &orderID,
	})
	require.NoError(t, err)
	return order
}

func (f fixture) reconciliationItems(t *testing.T) []models.ReconciliationItem {
	t.Helper()
	var items []models.ReconciliationItem
	require.NoError(t, f.conn.Order("id").Find(&items).Error)
	return items
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestHandlePaymentEventCompletesPendingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.pendingOrder(t, "80.00")

	outcome, err := f.svc.HandlePaymentEvent(ctx, PaymentEvent{
		Source:           "stripe",
		EventID:          "evt_1",
		GatewayPaymentID: "pi_1",
		OrderID:          order.ID,
		Amount:           decimal.RequireFromString("80"),
		Status:           enums.PaymentEventSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	entries, err := f.ledger.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, enums.TransactionStatusCompleted, entries[0].Status)
	require.NotNil(t, entries[0].GatewayReference)
	assert.Equal(t, "pi_1", *entries[0].GatewayReference)
	assert.Equal(t, []string{"stripe/applied"}, f.metrics.outcomes)
}

func TestHandlePaymentEventAbsorbsReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.pendingOrder(t, "30")
	event := PaymentEvent{
		Source:           "stripe",
		EventID:          "evt_2",
		GatewayPaymentID: "pi_2",
		OrderID:          order.ID,
		Amount:           decimal.RequireFromString("30"),
		Status:           enums.PaymentEventSucceeded,
	}

	_, err := f.svc.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)

	// Same delivery id: caught by the idempotency guard.
	outcome, err := f.svc.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	// New delivery id for the same payment: caught by the ledger.
	event.EventID = "evt_2_retry"
	outcome, err = f.svc.HandlePaymentEvent(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	entries, err := f.ledger.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Empty(t, f.reconciliationItems(t))
}

func TestHandlePaymentEventAmountMismatchGoesToReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.pendingOrder(t, "50")

	outcome, err := f.svc.HandlePaymentEvent(ctx, PaymentEvent{
		Source:           "stripe",
		EventID:          "evt_3",
		GatewayPaymentID: "pi_3",
		OrderID:          order.ID,
		Amount:           decimal.RequireFromString("49.99"),
		Status:           enums.PaymentEventSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciliation, outcome)

	items := f.reconciliationItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, enums.ReconciliationSourcePaymentWebhook, items[0].Source)
	assert.Equal(t, "pi_3", items[0].Reference)
	assert.Equal(t, string(pkgerrors.CodeIntegrityViolation), items[0].ErrorCode)

	entries, err := f.ledger.ListByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPending, entries[0].Status)
}

func TestHandlePaymentEventUnknownOrder(t *testing.T) {
	f := newFixture(t)

	outcome, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		GatewayPaymentID: "pi_missing",
		OrderID:          999,
		Amount:           decimal.NewFromInt(5),
		Status:           enums.PaymentEventFailed,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeReconciliation, outcome)

	items := f.reconciliationItems(t)
	require.Len(t, items, 1)
	assert.Equal(t, string(pkgerrors.CodeNotFound), items[0].ErrorCode)
	assert.Equal(t, []string{"generic/reconciliation"}, f.metrics.outcomes)
}

func TestHandlePaymentEventQueueFailureAllowsRedelivery(t *testing.T) {
	f := newFixture(t)
	f.svc.reconcile = failingQueue{}

	event := PaymentEvent{
		EventID:          "evt_4",
		GatewayPaymentID: "pi_4",
		OrderID:          12345,
		Amount:           decimal.NewFromInt(5),
		Status:           enums.PaymentEventSucceeded,
	}
	_, err := f.svc.HandlePaymentEvent(context.Background(), event)
	require.Error(t, err)
	assert.Equal(t, []string{paymentsConsumer + ":evt_4"}, f.guard.deleted)

	seen, err := f.guard.CheckAndMarkProcessed(context.Background(), paymentsConsumer, "evt_4")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestHandlePaymentEventProceedsWhenGuardUnavailable(t *testing.T) {
	f := newFixture(t)
	f.guard.err = errors.New("redis down")
	order := f.pendingOrder(t, "12")

	outcome, err := f.svc.HandlePaymentEvent(context.Background(), PaymentEvent{
		EventID:          "evt_5",
		GatewayPaymentID: "pi_5",
		OrderID:          order.ID,
		Amount:           decimal.NewFromInt(12),
		Status:           enums.PaymentEventSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)
}

func TestHandlePayoutEventOutcomes(t *testing.T) {
	cases := []struct {
		name   string
		result *payouts.CallbackResult
		err    error
		want   Outcome
		queued int
	}{
		{name: "applied", result: &payouts.CallbackResult{}, want: OutcomeApplied},
		{name: "duplicate", result: &payouts.CallbackResult{Duplicate: true}, want: OutcomeDuplicate},
		{name: "integrity handled upstream", err: pkgerrors.New(pkgerrors.CodeIntegrityViolation, "contradicts"), want: OutcomeReconciliation},
		{name: "unknown payout", err: pkgerrors.New(pkgerrors.CodeNotFound, "payout not found"), want: OutcomeReconciliation, queued: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.payouts.result, f.payouts.err = tc.result, tc.err

			outcome, err := f.svc.HandlePayoutEvent(context.Background(), PayoutEvent{
				Source:               "stripe",
				EventID:              "evt_po",
				GatewayTransactionID: "po_77",
				Status:               enums.PayoutStatusSucceeded,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, outcome)
			require.Len(t, f.payouts.calls, 1)
			assert.Equal(t, "po_77", f.payouts.calls[0].GatewayTransactionID)

			items := f.reconciliationItems(t)
			require.Len(t, items, tc.queued)
			if tc.queued > 0 {
				assert.Equal(t, enums.ReconciliationSourcePayoutCallback, items[0].Source)
				assert.Equal(t, "po_77", items[0].Reference)
			}
		})
	}
}

func TestHandlePayoutEventGuardSkipsProcessor(t *testing.T) {
	f := newFixture(t)
	event := PayoutEvent{EventID: "evt_dup", GatewayTransactionID: "po_1", Status: enums.PayoutStatusFailed}

	_, err := f.svc.HandlePayoutEvent(context.Background(), event)
	require.NoError(t, err)
	outcome, err := f.svc.HandlePayoutEvent(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, f.payouts.calls, 1)
}
