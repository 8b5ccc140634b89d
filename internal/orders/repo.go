package orders

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error; err != nil {
		return err
	}
	if len(order.Details) == 0 {
		return nil
	}
	for i := range order.Details {
		order.Details[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(&order.Details).Error
}

func (r *repository) FindOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Details", orderDetailsByID).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Order("id ASC").Find(&order.Details).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrder writes values only if the row is still at version and bumps it.
func (r *repository) UpdateOrder(ctx context.Context, id, version int64, values map[string]any) (int64, error) {
	values["version"] = gorm.Expr("version + 1")
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateDetail(ctx context.Context, detailID int64, values map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderDetail{}).
		Where("id = ?", detailID).
		Updates(values).Error
}

func (r *repository) DeleteDetail(ctx context.Context, detailID int64) error {
	return r.db.WithContext(ctx).Where("id = ?", detailID).Delete(&models.OrderDetail{}).Error
}

func (r *repository) DeleteOrder(ctx context.Context, id int64) error {
	if err := r.db.WithContext(ctx).Where("order_id = ?", id).Delete(&models.OrderDetail{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{}).Error
}

// FindLineCredit returns the wallet credit settled for an order line.
func (r *repository) FindLineCredit(ctx context.Context, detailID int64) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("reference_type = ? AND reference_id = ? AND type = ?",
			enums.WalletReferenceOrderDetail, detailID, enums.WalletEntryCredit).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.VendorID != nil {
		query = query.Where("vendor_id = ?", *filter.VendorID)
	}
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}
	var orders []models.Order
	err = query.
		Preload("Details", orderDetailsByID).
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&orders).Error
	return orders, err
}

func orderDetailsByID(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}
