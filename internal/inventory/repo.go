package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Repository persists batches, serials and export movements.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateBatch(ctx context.Context, batch *models.BatchInventory) error
	CreateSerials(ctx context.Context, serials []models.ProductSerial) error
	FindBatch(ctx context.Context, id int64) (*models.BatchInventory, error)
	FindBatchByLot(ctx context.Context, productID uuid.UUID, lot string) (*models.BatchInventory, error)
	ListBatchesByProduct(ctx context.Context, productID uuid.UUID) ([]models.BatchInventory, error)
	ListAllocatableBatches(ctx context.Context, productID uuid.UUID, strategy enums.LotStrategy) ([]models.BatchInventory, error)
	DecrementRemaining(ctx context.Context, batchID int64, qty int) (int64, error)
	IncrementRemaining(ctx context.Context, batchID int64, qty int) (int64, error)
	UpdateQuality(ctx context.Context, batchID int64, next enums.QualityStatus, checkedBy uuid.UUID, checkedAt time.Time, note *string) (int64, error)

	FindSerial(ctx context.Context, productID uuid.UUID, serialNumber string) (*models.ProductSerial, error)
	FindSerialByID(ctx context.Context, id int64) (*models.ProductSerial, error)
	ListExportableSerials(ctx context.Context, batchID int64, limit int) ([]models.ProductSerial, error)
	ListAvailableSerials(ctx context.Context, productID uuid.UUID) ([]AvailableSerial, error)
	TransitionSerial(ctx context.Context, serialID int64, from []enums.SerialStatus, to enums.SerialStatus) (int64, error)

	CreateMovement(ctx context.Context, movement *models.ExportInventory) error
	FindMovement(ctx context.Context, id int64) (*models.ExportInventory, error)
	ListSalesByOrderDetail(ctx context.Context, orderDetailID int64) ([]models.ExportInventory, error)
	SumOutstandingSales(ctx context.Context, orderDetailIDs []int64) (map[int64]int, error)
	IncrementRefund(ctx context.Context, movementID int64, qty int) (int64, error)
}

// AvailableSerial is an exportable serial joined with its lot.
type AvailableSerial struct {
	SerialNumber string
	LotNumber    string
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateBatch(ctx context.Context, batch *models.BatchInventory) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) CreateSerials(ctx context.Context, serials []models.ProductSerial) error {
	if len(serials) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&serials).Error
}

func (r *repository) FindBatch(ctx context.Context, id int64) (*models.BatchInventory, error) {
	var batch models.BatchInventory
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) FindBatchByLot(ctx context.Context, productID uuid.UUID, lot string) (*models.BatchInventory, error) {
	var batch models.BatchInventory
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND lot_number = ?", productID, lot).
		First(&batch).Error
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

func (r *repository) ListBatchesByProduct(ctx context.Context, productID uuid.UUID) ([]models.BatchInventory, error) {
	var batches []models.BatchInventory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("id ASC").
		Find(&batches).Error
	return batches, err
}

func (r *repository) ListAllocatableBatches(ctx context.Context, productID uuid.UUID, strategy enums.LotStrategy) ([]models.BatchInventory, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ? AND remaining_quantity > 0 AND quality_status <> ?", productID, enums.QualityStatusFailed)
	switch strategy {
	case enums.LotStrategyFEFO:
		query = query.Order("expiry_date IS NULL").Order("expiry_date ASC").Order("id ASC")
	default:
		query = query.Order("created_at ASC").Order("id ASC")
	}
	var batches []models.BatchInventory
	err := query.Find(&batches).Error
	return batches, err
}

// DecrementRemaining takes qty out of a batch only while enough stock remains
// and the batch has not failed inspection.
func (r *repository) DecrementRemaining(ctx context.Context, batchID int64, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BatchInventory{}).
		Where("id = ? AND remaining_quantity >= ? AND quality_status <> ?", batchID, qty, enums.QualityStatusFailed).
		Updates(map[string]any{
			"remaining_quantity": gorm.Expr("remaining_quantity - ?", qty),
			"version":            gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// IncrementRemaining returns stock to a batch, never above the received quantity.
func (r *repository) IncrementRemaining(ctx context.Context, batchID int64, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BatchInventory{}).
		Where("id = ? AND remaining_quantity + ? <= quantity", batchID, qty).
		Updates(map[string]any{
			"remaining_quantity": gorm.Expr("remaining_quantity + ?", qty),
			"version":            gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) UpdateQuality(ctx context.Context, batchID int64, next enums.QualityStatus, checkedBy uuid.UUID, checkedAt time.Time, note *string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.BatchInventory{}).
		Where("id = ? AND quality_status = ?", batchID, enums.QualityStatusPending).
		Updates(map[string]any{
			"quality_status":     next,
			"quality_checked_by": checkedBy,
			"quality_checked_at": checkedAt,
			"quality_note":       note,
			"version":            gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindSerial(ctx context.Context, productID uuid.UUID, serialNumber string) (*models.ProductSerial, error) {
	var serial models.ProductSerial
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND serial_number = ?", productID, serialNumber).
		First(&serial).Error
	if err != nil {
		return nil, err
	}
	return &serial, nil
}

func (r *repository) FindSerialByID(ctx context.Context, id int64) (*models.ProductSerial, error) {
	var serial models.ProductSerial
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&serial).Error; err != nil {
		return nil, err
	}
	return &serial, nil
}

func (r *repository) ListExportableSerials(ctx context.Context, batchID int64, limit int) ([]models.ProductSerial, error) {
	var serials []models.ProductSerial
	err := r.db.WithContext(ctx).
		Where("batch_id = ? AND status IN ?", batchID, enums.ExportableSerialStatuses).
		Order("id ASC").
		Limit(limit).
		Find(&serials).Error
	return serials, err
}

func (r *repository) ListAvailableSerials(ctx context.Context, productID uuid.UUID) ([]AvailableSerial, error) {
	var rows []AvailableSerial
	err := r.db.WithContext(ctx).
		Table("product_serials AS s").
		Select("s.serial_number AS serial_number, b.lot_number AS lot_number").
		Joins("JOIN batch_inventories AS b ON b.id = s.batch_id").
		Where("s.product_id = ? AND s.status IN ? AND b.quality_status <> ?", productID, enums.ExportableSerialStatuses, enums.QualityStatusFailed).
		Order("s.id ASC").
		Scan(&rows).Error
	return rows, err
}

// TransitionSerial moves a serial to `to` only if it is currently in one of `from`.
func (r *repository) TransitionSerial(ctx context.Context, serialID int64, from []enums.SerialStatus, to enums.SerialStatus) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ProductSerial{}).
		Where("id = ? AND status IN ?", serialID, from).
		Updates(map[string]any{
			"status":  to,
			"version": gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) CreateMovement(ctx context.Context, movement *models.ExportInventory) error {
	return r.db.WithContext(ctx).Create(movement).Error
}

func (r *repository) FindMovement(ctx context.Context, id int64) (*models.ExportInventory, error) {
	var movement models.ExportInventory
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

func (r *repository) ListSalesByOrderDetail(ctx context.Context, orderDetailID int64) ([]models.ExportInventory, error) {
	var movements []models.ExportInventory
	err := r.db.WithContext(ctx).
		Where("order_detail_id = ? AND movement_type = ?", orderDetailID, enums.MovementTypeSale).
		Order("id ASC").
		Find(&movements).Error
	return movements, err
}

func (r *repository) SumOutstandingSales(ctx context.Context, orderDetailIDs []int64) (map[int64]int, error) {
	out := make(map[int64]int, len(orderDetailIDs))
	if len(orderDetailIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		OrderDetailID int64
		Outstanding   int
	}
	err := r.db.WithContext(ctx).
		Model(&models.ExportInventory{}).
		Select("order_detail_id, COALESCE(SUM(quantity - refund_quantity), 0) AS outstanding").
		Where("order_detail_id IN ? AND movement_type = ?", orderDetailIDs, enums.MovementTypeSale).
		Group("order_detail_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.OrderDetailID] = row.Outstanding
	}
	return out, nil
}

// IncrementRefund raises refund_quantity while it stays within the exported quantity.
func (r *repository) IncrementRefund(ctx context.Context, movementID int64, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExportInventory{}).
		Where("id = ? AND refund_quantity + ? <= quantity", movementID, qty).
		Update("refund_quantity", gorm.Expr("refund_quantity + ?", qty))
	return res.RowsAffected, res.Error
}
