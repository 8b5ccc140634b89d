package settlement

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

var testNow = time.Date(2026, 5, 11, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn    *gorm.DB
	svc     *Service
	wallets *wallets.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "settlement-test", Output: io.Discard})
	clock := func() time.Time { return testNow }
	events := outbox.NewService(outbox.NewRepository(conn), logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, logg, enums.CurrencyUSD, clock)
	require.NoError(t, err)
	walletSvc, err := wallets.NewService(wallets.NewRepository(conn), ledgerSvc, logg)
	require.NoError(t, err)
	queue, err := reconciliation.NewService(reconciliation.NewRepository(conn), client, events, logg, nil, clock)
	require.NoError(t, err)

	svc, err := NewService(Params{
		Repo:           NewRepository(conn),
		Tx:             client,
		Outbox:         events,
		Ledger:         ledgerSvc,
		Wallets:        walletSvc,
		Reconciliation: queue,
		Logger:         logg,
		HoldPeriod:     7 * 24 * time.Hour,
		CommissionRate: decimal.RequireFromString("0.10"),
		Clock:          clock,
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, wallets: walletSvc}
}

func (f fixture) deliveredOrder(t *testing.T, vendor uuid.UUID, deliveredAt time.Time, subtotals ...string) *models.Order {
	t.Helper()
	order := &models.Order{
		CustomerID:      uuid.New(),
		VendorID:        vendor,
		Status:          enums.OrderStatusDelivered,
		Subtotal:        decimal.Zero,
		Discount:        decimal.Zero,
		Currency:        enums.CurrencyUSD,
		ShippingAddress: types.Address{Recipient: "Ada Byron", Line1: "1 Main St", City: "Austin", Country: "US"},
		DeliveredAt:     &deliveredAt,
	}
	for _, raw := range subtotals {
		amount := decimal.RequireFromString(raw)
		order.Subtotal = order.Subtotal.Add(amount)
		order.Details = append(order.Details, models.OrderDetail{
			ProductID: uuid.New(),
			Quantity:  1,
			UnitPrice: amount,
			Discount:  decimal.Zero,
			Subtotal:  amount,
		})
	}
	order.Total = order.Subtotal
	require.NoError(t, f.conn.Create(order).Error)
	return order
}

func (f fixture) detail(t *testing.T, id int64) models.OrderDetail {
	t.Helper()
	var detail models.OrderDetail
	require.NoError(t, f.conn.First(&detail, id).Error)
	return detail
}

func TestNewServiceRejectsBadRate(t *testing.T) {
	_, err := NewService(Params{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = NewService(Params{
		Repo:           f.svc.repo,
		Tx:             f.svc.tx,
		Outbox:         f.svc.outbox,
		Ledger:         f.svc.ledger,
		Wallets:        f.svc.wallets,
		Reconciliation: f.svc.reconcile,
		Logger:         f.svc.logg,
		CommissionRate: decimal.RequireFromString("1.5"),
	})
	require.Error(t, err)
}

func TestSplitRoundsNetToCents(t *testing.T) {
	f := newFixture(t)
	net, commission := f.svc.Split(decimal.RequireFromString("10.05"))
	assert.Equal(t, "9.05", net.StringFixed(2))
	assert.Equal(t, "1.00", commission.StringFixed(2))
	assert.True(t, net.Add(commission).Equal(decimal.RequireFromString("10.05")))
}

func TestProcessEligibleCreditsCreditsNetAndRecordsCommission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	order := f.deliveredOrder(t, vendor, testNow.Add(-8*24*time.Hour), "100000")

	result, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreditedLineCount)
	assert.True(t, result.TotalCredited.Equal(decimal.NewFromInt(90000)), result.TotalCredited.String())
	assert.True(t, result.Commission.Equal(decimal.NewFromInt(10000)), result.Commission.String())

	wallet, err := f.wallets.Get(ctx, vendor)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(90000)), wallet.Balance.String())

	detail := f.detail(t, order.Details[0].ID)
	assert.True(t, detail.IsWalletCredited)
	require.NotNil(t, detail.WalletCreditedAt)

	var commission models.Transaction
	require.NoError(t, f.conn.Where("type = ? AND order_detail_id = ?", enums.TransactionTypeCommission, detail.ID).First(&commission).Error)
	assert.True(t, commission.Amount.Equal(decimal.NewFromInt(10000)))
	assert.Equal(t, enums.TransactionStatusCompleted, commission.Status)

	var credit models.WalletTransaction
	require.NoError(t, f.conn.Where("wallet_id = ? AND type = ?", wallet.ID, enums.WalletEntryCredit).First(&credit).Error)
	assert.True(t, credit.Amount.Equal(decimal.NewFromInt(90000)))
	assert.Equal(t, enums.WalletReferenceOrderDetail, credit.ReferenceType)
	assert.Equal(t, detail.ID, credit.ReferenceID)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventWalletCredited).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestProcessEligibleCreditsIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	f.deliveredOrder(t, vendor, testNow.Add(-10*24*time.Hour), "40", "60")

	first, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 2, first.CreditedLineCount)

	second, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CreditedLineCount)
	assert.True(t, second.TotalCredited.IsZero())

	wallet, err := f.wallets.Get(ctx, vendor)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.Equal(decimal.NewFromInt(90)), wallet.Balance.String())

	var credits int64
	require.NoError(t, f.conn.Model(&models.WalletTransaction{}).Where("wallet_id = ?", wallet.ID).Count(&credits).Error)
	assert.Equal(t, int64(2), credits)
}

func TestProcessEligibleCreditsHonoursHoldPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	recent := f.deliveredOrder(t, vendor, testNow.Add(-2*24*time.Hour), "50")

	result, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CreditedLineCount)
	assert.False(t, f.detail(t, recent.Details[0].ID).IsWalletCredited)

	later, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow.Add(6*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, later.CreditedLineCount)
}

func TestProcessEligibleCreditsSkipsUndeliveredOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	order := f.deliveredOrder(t, vendor, testNow.Add(-30*24*time.Hour), "50")
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusRefunded).Error)

	result, err := f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CreditedLineCount)

	vendors, err := f.svc.VendorsDue(ctx, testNow)
	require.NoError(t, err)
	assert.Empty(t, vendors)
}

func TestProcessEligibleCreditsMissingWalletQueuesReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	order := f.deliveredOrder(t, vendor, testNow.Add(-8*24*time.Hour), "25")

	vendors, err := f.svc.VendorsDue(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{vendor}, vendors)

	_, err = f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation), err.Error())

	assert.False(t, f.detail(t, order.Details[0].ID).IsWalletCredited)

	var commissions int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Where("type = ?", enums.TransactionTypeCommission).Count(&commissions).Error)
	assert.Zero(t, commissions)

	var items []models.ReconciliationItem
	require.NoError(t, f.conn.Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, enums.ReconciliationSourceSettlement, items[0].Source)
	assert.Equal(t, string(pkgerrors.CodeIntegrityViolation), items[0].ErrorCode)
}

func TestProcessEligibleCreditsRequiresVendor(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ProcessEligibleCredits(context.Background(), uuid.Nil, testNow)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
}

// refundAfterListing refunds every listed order before any line is credited.
type refundAfterListing struct {
	Repository
	conn *gorm.DB
}

func (r refundAfterListing) ListEligibleLines(ctx context.Context, vendorID uuid.UUID, cutoff time.Time, limit int) ([]EligibleLine, error) {
	lines, err := r.Repository.ListEligibleLines(ctx, vendorID, cutoff, limit)
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if err := r.conn.Model(&models.Order{}).Where("id = ?", line.OrderID).Update("status", enums.OrderStatusRefunded).Error; err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func TestProcessEligibleCreditsSkipsOrderRefundedAfterListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	order := f.deliveredOrder(t, vendor, testNow.Add(-9*24*time.Hour), "80")

	svc, err := NewService(Params{
		Repo:           refundAfterListing{Repository: f.svc.repo, conn: f.conn},
		Tx:             f.svc.tx,
		Outbox:         f.svc.outbox,
		Ledger:         f.svc.ledger,
		Wallets:        f.svc.wallets,
		Reconciliation: f.svc.reconcile,
		Logger:         f.svc.logg,
		CommissionRate: decimal.RequireFromString("0.10"),
		Clock:          f.svc.now,
	})
	require.NoError(t, err)

	result, err := svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.NoError(t, err)
	assert.Equal(t, 0, result.CreditedLineCount)
	assert.True(t, result.TotalCredited.IsZero())

	assert.False(t, f.detail(t, order.Details[0].ID).IsWalletCredited)
	wallet, err := f.wallets.Get(ctx, vendor)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero(), wallet.Balance.String())

	var commissions int64
	require.NoError(t, f.conn.Model(&models.Transaction{}).Where("type = ?", enums.TransactionTypeCommission).Count(&commissions).Error)
	assert.Zero(t, commissions)
}

func TestProcessEligibleCreditsRejectsForeignCurrencyLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	vendor := uuid.New()
	_, err := f.wallets.Open(ctx, vendor, enums.CurrencyUSD)
	require.NoError(t, err)
	order := f.deliveredOrder(t, vendor, testNow.Add(-8*24*time.Hour), "120")
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("currency", enums.CurrencyEUR).Error)

	_, err = f.svc.ProcessEligibleCredits(ctx, vendor, testNow)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation), err.Error())

	assert.False(t, f.detail(t, order.Details[0].ID).IsWalletCredited)
	wallet, err := f.wallets.Get(ctx, vendor)
	require.NoError(t, err)
	assert.True(t, wallet.Balance.IsZero(), wallet.Balance.String())

	var items []models.ReconciliationItem
	require.NoError(t, f.conn.Find(&items).Error)
	require.Len(t, items, 1)
	assert.Equal(t, enums.ReconciliationSourceSettlement, items[0].Source)
	assert.Equal(t, string(pkgerrors.CodeIntegrityViolation), items[0].ErrorCode)
}
