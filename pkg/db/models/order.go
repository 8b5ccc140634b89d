package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// Order is a customer purchase from a single vendor.
type Order struct {
	ID              int64             `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CustomerID      uuid.UUID         `gorm:"column:customer_id;type:uuid;not null;index" json:"customer_id"`
	VendorID        uuid.UUID         `gorm:"column:vendor_id;type:uuid;not null;index:ix_orders_vendor_status,priority:1" json:"vendor_id"`
	Status          enums.OrderStatus `gorm:"column:status;type:varchar(16);not null;index:ix_orders_vendor_status,priority:2" json:"status"`
	Subtotal        decimal.Decimal   `gorm:"column:subtotal;type:numeric(18,2);not null" json:"subtotal"`
	Discount        decimal.Decimal   `gorm:"column:discount;type:numeric(18,2);not null" json:"discount"`
	Total           decimal.Decimal   `gorm:"column:total;type:numeric(18,2);not null" json:"total"`
	Currency        enums.Currency    `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	ShippingAddress types.Address     `gorm:"column:shipping_address;type:text;not null" json:"shipping_address"`
	Note            *string           `gorm:"column:note" json:"note,omitempty"`
	ConfirmedAt     *time.Time        `gorm:"column:confirmed_at" json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time        `gorm:"column:shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time        `gorm:"column:delivered_at;index" json:"delivered_at,omitempty"`
	CancelledAt     *time.Time        `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time        `gorm:"column:refunded_at" json:"refunded_at,omitempty"`
	Version         int64             `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Details         []OrderDetail     `gorm:"foreignKey:OrderID" json:"details,omitempty"`
}

// OrderDetail is one product line of an order.
type OrderDetail struct {
	ID               int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OrderID          int64              `gorm:"column:order_id;not null;index" json:"order_id"`
	ProductID        uuid.UUID          `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Quantity         int                `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice        decimal.Decimal    `gorm:"column:unit_price;type:numeric(18,2);not null" json:"unit_price"`
	Discount         decimal.Decimal    `gorm:"column:discount;type:numeric(18,2);not null" json:"discount"`
	Subtotal         decimal.Decimal    `gorm:"column:subtotal;type:numeric(18,2);not null" json:"subtotal"`
	Attributes       types.AttributeMap `gorm:"column:attributes;type:text" json:"attributes"`
	PreferredLot     *string            `gorm:"column:preferred_lot;type:varchar(64)" json:"preferred_lot,omitempty"`
	IsWalletCredited bool               `gorm:"column:is_wallet_credited;not null;default:false;index" json:"is_wallet_credited"`
	WalletCreditedAt *time.Time         `gorm:"column:wallet_credited_at" json:"wallet_credited_at,omitempty"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
