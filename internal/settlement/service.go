package settlement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

const (
	defaultHoldPeriod = 7 * 24 * time.Hour
	defaultBatchSize  = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ledgerWriter interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.Transaction, error)
}

type walletCrediter interface {
	CreditTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, m wallets.Movement) (*models.Wallet, *models.WalletTransaction, error)
}

type reconciler interface {
	Enqueue(ctx context.Context, entry reconciliation.Entry) (*models.ReconciliationItem, error)
}

type creditMetrics interface {
	ObserveCredit(currency string, net decimal.Decimal)
	IncSkipped(reason string)
}

// Result summarises one vendor pass.
type Result struct {
	VendorID          uuid.UUID       `json:"vendor_id"`
	CreditedLineCount int             `json:"credited_line_count"`
	TotalCredited     decimal.Decimal `json:"total_credited"`
	Commission        decimal.Decimal `json:"commission"`
}

// Params wires the settlement service.
type Params struct {
	Repo           Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Ledger         ledgerWriter
	Wallets        walletCrediter
	Reconciliation reconciler
	Metrics        creditMetrics
	Logger         *logger.Logger
	HoldPeriod     time.Duration
	CommissionRate decimal.Decimal
	BatchSize      int
	Clock          func() time.Time
}

// Service moves vendor earnings for delivered orders into wallets once the
// hold period has passed.
type Service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	ledger    ledgerWriter
	wallets   walletCrediter
	reconcile reconciler
	metrics   creditMetrics
	logg      *logger.Logger
	hold      time.Duration
	rate      decimal.Decimal
	batchSize int
	now       func() time.Time
}

// NewService validates params and builds the settlement service.
func NewService(p Params) (*Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("settlement repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("wallet store required")
	}
	if p.Reconciliation == nil {
		return nil, fmt.Errorf("reconciliation queue required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.CommissionRate.IsNegative() || p.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be between 0 and 1")
	}
	hold := p.HoldPeriod
	if hold <= 0 {
		hold = defaultHoldPeriod
	}
	batch := p.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	clock := p.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:      p.Repo,
		tx:        p.Tx,
		outbox:    p.Outbox,
		ledger:    p.Ledger,
		wallets:   p.Wallets,
		reconcile: p.Reconciliation,
		metrics:   p.Metrics,
		logg:      p.Logger,
		hold:      hold,
		rate:      p.CommissionRate,
		batchSize: batch,
		now:       clock,
	}, nil
}

// Cutoff is the latest delivery time that is settleable at asOf.
func (s *Service) Cutoff(asOf time.Time) time.Time {
	return asOf.Add(-s.hold)
}

// Split returns the vendor net and platform commission for a line subtotal.
func (s *Service) Split(subtotal decimal.Decimal) (net, commission decimal.Decimal) {
	net = subtotal.Mul(decimal.NewFromInt(1).Sub(s.rate)).Round(2)
	return net, subtotal.Sub(net)
}

// VendorsDue lists vendors with at least one line settleable at asOf.
func (s *Service) VendorsDue(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	vendors, err := s.repo.ListVendorsWithEligibleLines(ctx, s.Cutoff(asOf))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list vendors with eligible lines")
	}
	return vendors, nil
}

// ProcessEligibleCredits credits every eligible line of the vendor, one
// transaction per line. Each line re-checks its order under the order row
// lock, so an order refunded after listing is skipped. Lines credited by a
// concurrent pass are skipped too, so a repeated pass is a no-op. A missing wallet stops the pass with an integrity
// violation that is also queued for reconciliation.
func (s *Service) ProcessEligibleCredits(ctx context.Context, vendorID uuid.UUID, asOf time.Time) (*Result, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "vendor is required")
	}
	ctx = s.logg.WithVendorID(ctx, vendorID.String())
	result := &Result{VendorID: vendorID, TotalCredited: decimal.Zero, Commission: decimal.Zero}

	cutoff := s.Cutoff(asOf)
	lines, err := s.repo.ListEligibleLines(ctx, vendorID, cutoff, s.batchSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible lines")
	}

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		credited, net, commission, err := s.creditLine(ctx, line, cutoff)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation) {
				s.enqueueViolation(ctx, line, err)
			}
			return result, err
		}
		if !credited {
			continue
		}
		result.CreditedLineCount++
		result.TotalCredited = result.TotalCredited.Add(net)
		result.Commission = result.Commission.Add(commission)
	}

	if result.CreditedLineCount > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"lines":      result.CreditedLineCount,
			"credited":   result.TotalCredited.String(),
			"commission": result.Commission.String(),
		}), "settlement.vendor_settled")
	}
	return result, nil
}

func (s *Service) creditLine(ctx context.Context, line EligibleLine, cutoff time.Time) (bool, decimal.Decimal, decimal.Decimal, error) {
	net, commission := s.Split(line.Subtotal)
	credited := false
	skipReason := "already_credited"
	var wallet *models.Wallet

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		settleable, err := repo.LockSettleableOrder(ctx, line.OrderID, cutoff)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
		}
		if !settleable {
			skipReason = "order_not_settleable"
			return nil
		}
		now := s.now()
		rows, err := repo.MarkLineCredited(ctx, line.OrderDetailID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order line")
		}
		if rows == 0 {
			return nil
		}
		credited = true

		orderID, detailID := line.OrderID, line.OrderDetailID
		var commissionEntryID *int64
		if commission.IsPositive() {
			entry, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
				Type:          enums.TransactionTypeCommission,
				Amount:        commission,
				Currency:      line.Currency,
				UserID:        line.VendorID,
				OrderID:       &orderID,
				OrderDetailID: &detailID,
				Note:          "platform commission",
				Status:        enums.TransactionStatusCompleted,
			})
			if err != nil {
				return err
			}
			commissionEntryID = &entry.ID
		}
		if !net.IsPositive() {
			return nil
		}

		var walletEntry *models.WalletTransaction
		wallet, walletEntry, err = s.wallets.CreditTx(ctx, tx, line.VendorID, wallets.Movement{
			Amount:        net,
			Currency:      line.Currency,
			ReferenceType: enums.WalletReferenceOrderDetail,
			ReferenceID:   line.OrderDetailID,
			TransactionID: commissionEntryID,
			Note:          "order line settlement",
		})
		if err != nil {
			return err
		}

		var transactionID int64
		if commissionEntryID != nil {
			transactionID = *commissionEntryID
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWalletCredited,
			AggregateType: enums.AggregateWallet,
			AggregateID:   wallet.ID,
			Version:       int(wallet.Version),
			Data: payloads.WalletCreditedEvent{
				WalletID:      wallet.ID,
				VendorID:      line.VendorID.String(),
				OrderDetailID: line.OrderDetailID,
				TransactionID: transactionID,
				Gross:         line.Subtotal,
				Commission:    commission,
				Net:           walletEntry.Amount,
				Currency:      line.Currency,
			},
		})
	})
	if err != nil {
		return false, decimal.Zero, decimal.Zero, err
	}
	if !credited {
		s.incSkipped(skipReason)
		return false, decimal.Zero, decimal.Zero, nil
	}

	s.observeCredit(string(line.Currency), net)
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, line.OrderID), map[string]any{
		"order_detail_id": line.OrderDetailID,
		"net":             net.String(),
		"commission":      commission.String(),
	})
	if wallet != nil {
		logCtx = s.logg.WithField(logCtx, "wallet_id", wallet.ID)
	}
	s.logg.Info(logCtx, "wallet.credited")
	return true, net, commission, nil
}

func (s *Service) enqueueViolation(ctx context.Context, line EligibleLine, cause error) {
	_, err := s.reconcile.Enqueue(ctx, reconciliation.Entry{
		Source:    enums.ReconciliationSourceSettlement,
		Reference: "order_detail:" + strconv.FormatInt(line.OrderDetailID, 10),
		Err:       cause,
		Payload: map[string]any{
			"vendor_id":       line.VendorID.String(),
			"order_id":        line.OrderID,
			"order_detail_id": line.OrderDetailID,
			"subtotal":        line.Subtotal.String(),
		},
	})
	if err != nil {
		s.logg.Error(ctx, "settlement.reconciliation_enqueue_failed", err)
	}
}

func (s *Service) observeCredit(currency string, net decimal.Decimal) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveCredit(currency, net)
}

func (s *Service) incSkipped(reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSkipped(reason)
}
