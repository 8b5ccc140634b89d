package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Transaction is an append-only ledger entry. Once it leaves pending it is
// immutable; corrections are new adjustment entries.
type Transaction struct {
	ID               int64                   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Type             enums.TransactionType   `gorm:"column:type;type:varchar(32);not null;index" json:"type"`
	Amount           decimal.Decimal         `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Currency         enums.Currency          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Status           enums.TransactionStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	OrderID          *int64                  `gorm:"column:order_id;index" json:"order_id,omitempty"`
	OrderDetailID    *int64                  `gorm:"column:order_detail_id;index" json:"order_detail_id,omitempty"`
	UserID           uuid.UUID               `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Note             string                  `gorm:"column:note;not null;default:''" json:"note"`
	FailureReason    *string                 `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	GatewayReference *string                 `gorm:"column:gateway_reference;type:varchar(128);uniqueIndex:ux_transactions_gateway_reference" json:"gateway_reference,omitempty"`
	CompletedAt      *time.Time              `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
