package wallets

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
)

// Repository persists wallets and reads their movement history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, wallet *models.Wallet) error
	FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	FindByID(ctx context.Context, id int64) (*models.Wallet, error)
	LockByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error)
	LockByID(ctx context.Context, id int64) (*models.Wallet, error)
	UpdateBalances(ctx context.Context, id, version int64, balance, pending decimal.Decimal) (int64, error)
	ListEntries(ctx context.Context, walletID int64, limit int) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a wallet repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, wallet *models.Wallet) error {
	return r.db.WithContext(ctx).Create(wallet).Error
}

func (r *repository) FindByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("vendor_id = ?", vendorID).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) LockByVendor(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("vendor_id = ?", vendorID).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) LockByID(ctx context.Context, id int64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// UpdateBalances writes both amounts only if the row is still at version.
func (r *repository) UpdateBalances(ctx context.Context, id, version int64, balance, pending decimal.Decimal) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"balance":          balance,
			"pending_withdraw": pending,
			"version":          version + 1,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListEntries(ctx context.Context, walletID int64, limit int) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	query := r.db.WithContext(ctx).Where("wallet_id = ?", walletID).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
