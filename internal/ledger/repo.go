package ledger

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Repository manages persistence for ledger entries and wallet movements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.Transaction) error
	FindByID(ctx context.Context, id int64) (*models.Transaction, error)
	FindByGatewayReference(ctx context.Context, ref string) (*models.Transaction, error)
	FindPendingPayment(ctx context.Context, orderID int64) (*models.Transaction, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]models.Transaction, error)
	Transition(ctx context.Context, id int64, update StatusUpdate) (int64, error)

	CreateWalletEntry(ctx context.Context, entry *models.WalletTransaction) error
	ListWalletEntries(ctx context.Context, walletID int64) ([]models.WalletTransaction, error)
	ReferenceExists(ctx context.Context, refType enums.WalletReferenceType, id int64) (bool, error)
}

// StatusUpdate moves a pending entry to a final status.
type StatusUpdate struct {
	To               enums.TransactionStatus
	FailureReason    *string
	CompletedAt      *time.Time
	GatewayReference *string
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.Transaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var entry models.Transaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByGatewayReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var entry models.Transaction
	if err := r.db.WithContext(ctx).Where("gateway_reference = ?", ref).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindPendingPayment(ctx context.Context, orderID int64) (*models.Transaction, error) {
	var entry models.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ? AND status = ? AND gateway_reference IS NULL",
			orderID, enums.TransactionTypePaymentIn, enums.TransactionStatusPending).
		Order("id ASC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID int64) ([]models.Transaction, error) {
	var entries []models.Transaction
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// Transition only touches rows that are still pending.
func (r *repository) Transition(ctx context.Context, id int64, update StatusUpdate) (int64, error) {
	values := map[string]any{"status": update.To}
	if update.FailureReason != nil {
		values["failure_reason"] = *update.FailureReason
	}
	if update.CompletedAt != nil {
		values["completed_at"] = *update.CompletedAt
	}
	if update.GatewayReference != nil {
		values["gateway_reference"] = *update.GatewayReference
	}
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) CreateWalletEntry(ctx context.Context, entry *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListWalletEntries(ctx context.Context, walletID int64) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("id ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ReferenceExists(ctx context.Context, refType enums.WalletReferenceType, id int64) (bool, error) {
	var model any
	switch refType {
	case enums.WalletReferenceTransaction:
		model = &models.Transaction{}
	case enums.WalletReferenceOrderDetail:
		model = &models.OrderDetail{}
	case enums.WalletReferenceCashout:
		model = &models.Cashout{}
	default:
		return false, fmt.Errorf("unknown wallet reference type %q", refType)
	}
	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
