// Package reports exposes read-only views over settlement, stock and cashout
// state for vendors and operators.
package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

const (
	defaultQueueLimit = 100
	maxQueueLimit     = 500
	maxRevenueWindow  = 366 * 24 * time.Hour
)

// VendorRevenue summarises what a vendor earned in [From, To).
type VendorRevenue struct {
	VendorID        uuid.UUID       `json:"vendor_id"`
	From            time.Time       `json:"from"`
	To              time.Time       `json:"to"`
	Currency        enums.Currency  `json:"currency,omitempty"`
	CreditedLines   int64           `json:"credited_lines"`
	Gross           decimal.Decimal `json:"gross"`
	Commission      decimal.Decimal `json:"commission"`
	NetCredited     decimal.Decimal `json:"net_credited"`
	AwaitingLines   int64           `json:"awaiting_lines"`
	AwaitingGross   decimal.Decimal `json:"awaiting_gross"`
	Balance         decimal.Decimal `json:"balance"`
	PendingWithdraw decimal.Decimal `json:"pending_withdraw"`
	Available       decimal.Decimal `json:"available"`
}

// LotStock is the stock position of one batch.
type LotStock struct {
	BatchID       int64               `json:"batch_id"`
	LotNumber     string              `json:"lot_number"`
	QualityStatus enums.QualityStatus `json:"quality_status"`
	Received      int                 `json:"received"`
	Remaining     int                 `json:"remaining"`
	Sold          int                 `json:"sold"`
	Refunded      int                 `json:"refunded"`
	WrittenOff    int                 `json:"written_off"`
	ExpiryDate    *time.Time          `json:"expiry_date,omitempty"`
}

// StockSummary rolls up every lot of a product.
type StockSummary struct {
	ProductID uuid.UUID  `json:"product_id"`
	Lots      []LotStock `json:"lots"`
	Received  int        `json:"received"`
	Remaining int        `json:"remaining"`
	Sellable  int        `json:"sellable"`
}

// QueueItem is an open cashout as operators see it.
type QueueItem struct {
	CashoutID             int64               `json:"cashout_id"`
	VendorID              uuid.UUID           `json:"vendor_id"`
	Amount                decimal.Decimal     `json:"amount"`
	Currency              enums.Currency      `json:"currency"`
	Status                enums.CashoutStatus `json:"status"`
	RequestedAt           time.Time           `json:"requested_at"`
	AgeSeconds            int64               `json:"age_seconds"`
	PayoutID              *int64              `json:"payout_id,omitempty"`
	PayoutStatus          *enums.PayoutStatus `json:"payout_status,omitempty"`
	ExternalTransactionID *string             `json:"external_transaction_id,omitempty"`
}

// CashoutQueue lists open cashouts oldest first with per-currency totals.
type CashoutQueue struct {
	Items  []QueueItem                        `json:"items"`
	Totals map[enums.Currency]decimal.Decimal `json:"totals"`
}

// Service answers reporting queries.
type Service struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo Repository, logg *logger.Logger, clock func() time.Time) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, logg: logg, now: clock}, nil
}

// VendorRevenue reports credited revenue in the window plus delivered lines
// still inside the hold period and the current wallet position.
func (s *Service) VendorRevenue(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (*VendorRevenue, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "vendor is required")
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(0, -1, 0)
	}
	if !from.Before(to) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "from must be before to")
	}
	if to.Sub(from) > maxRevenueWindow {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "report window exceeds one year")
	}
	from, to = from.UTC(), to.UTC()

	credited, err := s.repo.CreditedLines(ctx, vendorID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum credited lines")
	}
	awaiting, err := s.repo.PendingLines(ctx, vendorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum awaiting lines")
	}
	commission, err := s.repo.CommissionTotal(ctx, vendorID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum commission")
	}
	net, err := s.repo.NetCredited(ctx, vendorID, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum wallet credits")
	}

	out := &VendorRevenue{
		VendorID:        vendorID,
		From:            from,
		To:              to,
		CreditedLines:   credited.Lines,
		Gross:           credited.Gross,
		Commission:      commission,
		NetCredited:     net,
		AwaitingLines:   awaiting.Lines,
		AwaitingGross:   awaiting.Gross,
		Balance:         decimal.Zero,
		PendingWithdraw: decimal.Zero,
		Available:       decimal.Zero,
	}

	wallet, err := s.repo.FindWallet(ctx, vendorID)
	switch {
	case err == nil:
		out.Currency = wallet.Currency
		out.Balance = wallet.Balance
		out.PendingWithdraw = wallet.PendingWithdraw
		out.Available = wallet.Available()
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return out, nil
}

// StockSummary reports received, remaining and exported quantities per lot.
// Sellable excludes lots that failed quality control.
func (s *Service) StockSummary(ctx context.Context, productID uuid.UUID) (*StockSummary, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "product is required")
	}
	batches, err := s.repo.ListBatches(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batches")
	}
	if len(batches) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no stock recorded for product")
	}
	totals, err := s.repo.MovementTotals(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum movements")
	}

	byBatch := make(map[int64][]MovementTotals, len(batches))
	for _, row := range totals {
		byBatch[row.BatchID] = append(byBatch[row.BatchID], row)
	}

	summary := &StockSummary{ProductID: productID, Lots: make([]LotStock, 0, len(batches))}
	for _, batch := range batches {
		lot := LotStock{
			BatchID:       batch.ID,
			LotNumber:     batch.LotNumber,
			QualityStatus: batch.QualityStatus,
			Received:      batch.Quantity,
			Remaining:     batch.RemainingQuantity,
			ExpiryDate:    batch.ExpiryDate,
		}
		for _, row := range byBatch[batch.ID] {
			if row.MovementType == enums.MovementTypeSale {
				lot.Sold += row.Quantity
				lot.Refunded += row.Refunded
				continue
			}
			lot.WrittenOff += row.Quantity - row.Refunded
		}
		summary.Lots = append(summary.Lots, lot)
		summary.Received += lot.Received
		summary.Remaining += lot.Remaining
		if batch.QualityStatus != enums.QualityStatusFailed {
			summary.Sellable += lot.Remaining
		}
	}
	return summary, nil
}

// CashoutQueue lists open cashouts, optionally for one vendor.
func (s *Service) CashoutQueue(ctx context.Context, vendorID *uuid.UUID, limit int) (*CashoutQueue, error) {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	if limit > maxQueueLimit {
		limit = maxQueueLimit
	}
	rows, err := s.repo.OpenCashouts(ctx, vendorID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list open cashouts")
	}

	now := s.now()
	queue := &CashoutQueue{
		Items:  make([]QueueItem, 0, len(rows)),
		Totals: map[enums.Currency]decimal.Decimal{},
	}
	for _, row := range rows {
		age := now.Sub(row.RequestedAt)
		if age < 0 {
			age = 0
		}
		queue.Items = append(queue.Items, QueueItem{
			CashoutID:             row.CashoutID,
			VendorID:              row.VendorID,
			Amount:                row.Amount,
			Currency:              row.Currency,
			Status:                row.Status,
			RequestedAt:           row.RequestedAt,
			AgeSeconds:            int64(age / time.Second),
			PayoutID:              row.PayoutID,
			PayoutStatus:          row.PayoutStatus,
			ExternalTransactionID: row.ExternalTransactionID,
		})
		queue.Totals[row.Currency] = queue.Totals[row.Currency].Add(row.Amount)
	}
	if len(rows) > 0 {
		s.logg.Debug(s.logg.WithField(ctx, "open_cashouts", len(rows)), "reports.cashout_queue")
	}
	return queue, nil
}
