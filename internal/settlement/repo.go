package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// EligibleLine is a delivered, uncredited order line past its hold period.
type EligibleLine struct {
	OrderDetailID int64
	OrderID       int64
	VendorID      uuid.UUID
	Subtotal      decimal.Decimal
	Currency      enums.Currency
}

// Repository reads settlement candidates and flags credited lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListEligibleLines(ctx context.Context, vendorID uuid.UUID, cutoff time.Time, limit int) ([]EligibleLine, error)
	ListVendorsWithEligibleLines(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	// LockSettleableOrder takes the order row lock refunds also take and
	// reports whether the order is still delivered on or before cutoff.
	LockSettleableOrder(ctx context.Context, orderID int64, cutoff time.Time) (bool, error)
	MarkLineCredited(ctx context.Context, orderDetailID int64, at time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a settlement repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) eligible(ctx context.Context, cutoff time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("order_details AS d").
		Joins("JOIN orders AS o ON o.id = d.order_id").
		Where("o.status = ? AND o.delivered_at IS NOT NULL AND o.delivered_at <= ? AND d.is_wallet_credited = ?",
			enums.OrderStatusDelivered, cutoff, false)
}

func (r *repository) ListEligibleLines(ctx context.Context, vendorID uuid.UUID, cutoff time.Time, limit int) ([]EligibleLine, error) {
	var lines []EligibleLine
	query := r.eligible(ctx, cutoff).
		Select("d.id AS order_detail_id, d.order_id AS order_id, o.vendor_id AS vendor_id, d.subtotal AS subtotal, o.currency AS currency").
		Where("o.vendor_id = ?", vendorID).
		Order("d.id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Scan(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) ListVendorsWithEligibleLines(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	var vendors []uuid.UUID
	err := r.eligible(ctx, cutoff).
		Distinct("o.vendor_id").
		Pluck("o.vendor_id", &vendors).Error
	if err != nil {
		return nil, err
	}
	return vendors, nil
}

func (r *repository) LockSettleableOrder(ctx context.Context, orderID int64, cutoff time.Time) (bool, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "status", "delivered_at").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	if order.Status != enums.OrderStatusDelivered || order.DeliveredAt == nil {
		return false, nil
	}
	return !order.DeliveredAt.After(cutoff), nil
}

// MarkLineCredited flips the credit flag only while it is still false.
func (r *repository) MarkLineCredited(ctx context.Context, orderDetailID int64, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderDetail{}).
		Where("id = ? AND is_wallet_credited = ?", orderDetailID, false).
		Updates(map[string]any{
			"is_wallet_credited": true,
			"wallet_credited_at": at,
		})
	return res.RowsAffected, res.Error
}
