package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ExportInventory is an immutable stock movement out of a batch. Only
// RefundQuantity may change after insert, and only upward.
type ExportInventory struct {
	ID             int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProductID      uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index" json:"product_id"`
	BatchID        int64              `gorm:"column:batch_id;not null;index" json:"batch_id"`
	SerialID       *int64             `gorm:"column:serial_id;index" json:"serial_id,omitempty"`
	LotNumber      string             `gorm:"column:lot_number;type:varchar(64);not null" json:"lot_number"`
	Quantity       int                `gorm:"column:quantity;not null" json:"quantity"`
	MovementType   enums.MovementType `gorm:"column:movement_type;type:varchar(32);not null" json:"movement_type"`
	OrderDetailID  *int64             `gorm:"column:order_detail_id;index" json:"order_detail_id,omitempty"`
	RefundQuantity int                `gorm:"column:refund_quantity;not null;default:0" json:"refund_quantity"`
	ReversalOfID   *int64             `gorm:"column:reversal_of_id;index" json:"reversal_of_id,omitempty"`
	Note           *string            `gorm:"column:note" json:"note,omitempty"`
	CreatedBy      uuid.UUID          `gorm:"column:created_by;type:uuid;not null" json:"created_by"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName pins the table name used by migrations.
func (ExportInventory) TableName() string { return "export_inventories" }

// OutstandingQuantity is the part of the movement that has not been refunded.
func (e ExportInventory) OutstandingQuantity() int {
	return e.Quantity - e.RefundQuantity
}
