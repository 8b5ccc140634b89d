package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// LineTotals is a count and subtotal sum over order lines.
type LineTotals struct {
	Lines int64
	Gross decimal.Decimal
}

// MovementTotals aggregates exports of one batch by movement type.
type MovementTotals struct {
	BatchID      int64
	MovementType enums.MovementType
	Quantity     int
	Refunded     int
}

// QueueRow is an open cashout with its payout, if one exists.
type QueueRow struct {
	CashoutID             int64
	VendorID              uuid.UUID
	Amount                decimal.Decimal
	Currency              enums.Currency
	Status                enums.CashoutStatus
	RequestedAt           time.Time
	PayoutID              *int64
	PayoutStatus          *enums.PayoutStatus
	ExternalTransactionID *string
}

// Repository runs read-only aggregate queries.
type Repository interface {
	CreditedLines(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (LineTotals, error)
	PendingLines(ctx context.Context, vendorID uuid.UUID) (LineTotals, error)
	CommissionTotal(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	NetCredited(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (decimal.Decimal, error)
	FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	ListBatches(ctx context.Context, productID uuid.UUID) ([]models.BatchInventory, error)
	MovementTotals(ctx context.Context, productID uuid.UUID) ([]MovementTotals, error)
	OpenCashouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]QueueRow, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreditedLines(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (LineTotals, error) {
	var row struct {
		Lines int64
		Gross decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("order_details AS d").
		Select("COUNT(d.id) AS lines, COALESCE(SUM(d.subtotal), 0) AS gross").
		Joins("JOIN orders AS o ON o.id = d.order_id").
		Where("o.vendor_id = ? AND d.is_wallet_credited = ?", vendorID, true).
		Where("d.wallet_credited_at >= ? AND d.wallet_credited_at < ?", from, to).
		Scan(&row).Error
	return LineTotals{Lines: row.Lines, Gross: row.Gross.Round(2)}, err
}

func (r *repository) PendingLines(ctx context.Context, vendorID uuid.UUID) (LineTotals, error) {
	var row struct {
		Lines int64
		Gross decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("order_details AS d").
		Select("COUNT(d.id) AS lines, COALESCE(SUM(d.subtotal), 0) AS gross").
		Joins("JOIN orders AS o ON o.id = d.order_id").
		Where("o.vendor_id = ? AND o.status = ? AND d.is_wallet_credited = ?", vendorID, enums.OrderStatusDelivered, false).
		Scan(&row).Error
	return LineTotals{Lines: row.Lines, Gross: row.Gross.Round(2)}, err
}

func (r *repository) CommissionTotal(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Table("transactions AS t").
		Select("COALESCE(SUM(t.amount), 0)").
		Joins("JOIN order_details AS d ON d.id = t.order_detail_id").
		Joins("JOIN orders AS o ON o.id = d.order_id").
		Where("o.vendor_id = ? AND t.type = ? AND t.status = ?", vendorID, enums.TransactionTypeCommission, enums.TransactionStatusCompleted).
		Where("t.completed_at >= ? AND t.completed_at < ?", from, to).
		Scan(&total).Error
	return total.Round(2), err
}

func (r *repository) NetCredited(ctx context.Context, vendorID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Table("wallet_transactions AS wt").
		Select("COALESCE(SUM(wt.amount), 0)").
		Joins("JOIN wallets AS w ON w.id = wt.wallet_id").
		Where("w.vendor_id = ? AND wt.type = ? AND wt.reference_type = ?", vendorID, enums.WalletEntryCredit, enums.WalletReferenceOrderDetail).
		Where("wt.created_at >= ? AND wt.created_at < ?", from, to).
		Scan(&total).Error
	return total.Round(2), err
}

func (r *repository) FindWallet(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) ListBatches(ctx context.Context, productID uuid.UUID) ([]models.BatchInventory, error) {
	var batches []models.BatchInventory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&batches).Error
	return batches, err
}

func (r *repository) MovementTotals(ctx context.Context, productID uuid.UUID) ([]MovementTotals, error) {
	var rows []MovementTotals
	err := r.db.WithContext(ctx).
		Model(&models.ExportInventory{}).
		Select("batch_id, movement_type, COALESCE(SUM(quantity), 0) AS quantity, COALESCE(SUM(refund_quantity), 0) AS refunded").
		Where("product_id = ?", productID).
		Group("batch_id, movement_type").
		Scan(&rows).Error
	return rows, err
}

func (r *repository) OpenCashouts(ctx context.Context, vendorID *uuid.UUID, limit int) ([]QueueRow, error) {
	var rows []QueueRow
	query := r.db.WithContext(ctx).
		Table("cashouts AS c").
		Select(`c.id AS cashout_id, c.vendor_id, c.amount, c.currency, c.status, c.created_at AS requested_at,
			p.id AS payout_id, p.status AS payout_status, p.external_transaction_id`).
		Joins("LEFT JOIN payouts AS p ON p.cashout_id = c.id").
		Where("c.status IN ?", enums.OpenCashoutStatuses).
		Order("c.created_at ASC, c.id ASC").
		Limit(limit)
	if vendorID != nil {
		query = query.Where("c.vendor_id = ?", *vendorID)
	}
	err := query.Scan(&rows).Error
	for i := range rows {
		rows[i].Amount = rows[i].Amount.Round(2)
	}
	return rows, err
}
