package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// BatchInventory is one received lot of a product. Rows are never deleted;
// RemainingQuantity only moves through conditional updates.
type BatchInventory struct {
	ID                int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProductID         uuid.UUID           `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_batch_inventories_product_lot,priority:1;index" json:"product_id"`
	VendorID          uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	LotNumber         string              `gorm:"column:lot_number;type:varchar(64);not null;uniqueIndex:ux_batch_inventories_product_lot,priority:2" json:"lot_number"`
	Quantity          int                 `gorm:"column:quantity;not null" json:"quantity"`
	RemainingQuantity int                 `gorm:"column:remaining_quantity;not null" json:"remaining_quantity"`
	UnitCost          decimal.Decimal     `gorm:"column:unit_cost;type:numeric(18,2);not null" json:"unit_cost"`
	ExpiryDate        *time.Time          `gorm:"column:expiry_date" json:"expiry_date,omitempty"`
	ManufacturingDate *time.Time          `gorm:"column:manufacturing_date" json:"manufacturing_date,omitempty"`
	QualityStatus     enums.QualityStatus `gorm:"column:quality_status;type:varchar(16);not null;default:'pending'" json:"quality_status"`
	QualityCheckedBy  *uuid.UUID          `gorm:"column:quality_checked_by;type:uuid" json:"quality_checked_by,omitempty"`
	QualityCheckedAt  *time.Time          `gorm:"column:quality_checked_at" json:"quality_checked_at,omitempty"`
	QualityNote       *string             `gorm:"column:quality_note" json:"quality_note,omitempty"`
	Serialized        bool                `gorm:"column:serialized;not null;default:false" json:"serialized"`
	Version           int64               `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name used by migrations.
func (BatchInventory) TableName() string { return "batch_inventories" }
