package payouts

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// CashoutFilter narrows cashout listings.
type CashoutFilter struct {
	VendorID *uuid.UUID
	Status   *enums.CashoutStatus
}

// Repository persists cashouts and payouts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateCashout(ctx context.Context, cashout *models.Cashout) error
	FindCashout(ctx context.Context, id int64) (*models.Cashout, error)
	LockCashout(ctx context.Context, id int64) (*models.Cashout, error)
	// UpdateCashoutStatus moves a cashout only while it is still in from.
	UpdateCashoutStatus(ctx context.Context, id int64, from []enums.CashoutStatus, values map[string]any) (int64, error)
	ListCashouts(ctx context.Context, filter CashoutFilter, params pagination.Params) ([]models.Cashout, error)
	CreatePayout(ctx context.Context, payout *models.Payout) error
	FindPayoutByCashout(ctx context.Context, cashoutID int64) (*models.Payout, error)
	FindPayoutByExternalID(ctx context.Context, externalID string) (*models.Payout, error)
	FindPayout(ctx context.Context, id int64) (*models.Payout, error)
	// UpdatePayoutStatus moves a payout only while it is still in from.
	UpdatePayoutStatus(ctx context.Context, id int64, from []enums.PayoutStatus, values map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payouts repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateCashout(ctx context.Context, cashout *models.Cashout) error {
	return r.db.WithContext(ctx).Create(cashout).Error
}

func (r *repository) FindCashout(ctx context.Context, id int64) (*models.Cashout, error) {
	var cashout models.Cashout
	if err := r.db.WithContext(ctx).First(&cashout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cashout, nil
}

func (r *repository) LockCashout(ctx context.Context, id int64) (*models.Cashout, error) {
	var cashout models.Cashout
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&cashout, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &cashout, nil
}

func (r *repository) UpdateCashoutStatus(ctx context.Context, id int64, from []enums.CashoutStatus, values map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Cashout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) ListCashouts(ctx context.Context, filter CashoutFilter, params pagination.Params) ([]models.Cashout, error) {
	query := r.db.WithContext(ctx).Model(&models.Cashout{})
	if filter.VendorID != nil {
		query = query.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}
	var cashouts []models.Cashout
	err = query.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&cashouts).Error
	return cashouts, err
}

func (r *repository) CreatePayout(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

func (r *repository) FindPayoutByCashout(ctx context.Context, cashoutID int64) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "cashout_id = ?", cashoutID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindPayoutByExternalID(ctx context.Context, externalID string) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "external_transaction_id = ?", externalID).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) FindPayout(ctx context.Context, id int64) (*models.Payout, error) {
	var payout models.Payout
	if err := r.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &payout, nil
}

func (r *repository) UpdatePayoutStatus(ctx context.Context, id int64, from []enums.PayoutStatus, values map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Payout{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}
