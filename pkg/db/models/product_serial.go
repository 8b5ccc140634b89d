package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ProductSerial is a single serialized unit received inside a batch.
type ProductSerial struct {
	ID           int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	BatchID      int64              `gorm:"column:batch_id;not null;index" json:"batch_id"`
	ProductID    uuid.UUID          `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_serials_product_serial,priority:1" json:"product_id"`
	SerialNumber string             `gorm:"column:serial_number;type:varchar(128);not null;uniqueIndex:ux_product_serials_product_serial,priority:2" json:"serial_number"`
	Status       enums.SerialStatus `gorm:"column:status;type:varchar(16);not null;default:'stock'" json:"status"`
	Version      int64              `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
