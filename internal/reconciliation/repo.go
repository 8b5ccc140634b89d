package reconciliation

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// Repository persists reconciliation items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.ReconciliationItem) error
	FindByID(ctx context.Context, id int64) (*models.ReconciliationItem, error)
	ListOpen(ctx context.Context, source *enums.ReconciliationSource, params pagination.Params) ([]models.ReconciliationItem, error)
	Resolve(ctx context.Context, id int64, values map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a reconciliation repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.ReconciliationItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.ReconciliationItem, error) {
	var item models.ReconciliationItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListOpen(ctx context.Context, source *enums.ReconciliationSource, params pagination.Params) ([]models.ReconciliationItem, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Where("status = ?", enums.ReconciliationStatusOpen)
	if source != nil {
		query = query.Where("source = ?", *source)
	}
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}
	var items []models.ReconciliationItem
	err = query.Order("id DESC").Limit(pagination.LimitWithBuffer(params.Limit)).Find(&items).Error
	return items, err
}

// Resolve closes an item that is still open.
func (r *repository) Resolve(ctx context.Context, id int64, values map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReconciliationItem{}).
		Where("id = ? AND status = ?", id, enums.ReconciliationStatusOpen).
		Updates(values)
	return res.RowsAffected, res.Error
}
