package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Wallet holds a vendor's settled earnings. PendingWithdraw is the part of
// Balance reserved by open cashouts.
type Wallet struct {
	ID              int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VendorID        uuid.UUID       `gorm:"column:vendor_id;type:uuid;not null;uniqueIndex:ux_wallets_vendor" json:"vendor_id"`
	Balance         decimal.Decimal `gorm:"column:balance;type:numeric(18,2);not null" json:"balance"`
	PendingWithdraw decimal.Decimal `gorm:"column:pending_withdraw;type:numeric(18,2);not null" json:"pending_withdraw"`
	Currency        enums.Currency  `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	Version         int64           `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Available is the amount a vendor may still request for cashout.
func (w Wallet) Available() decimal.Decimal {
	return w.Balance.Sub(w.PendingWithdraw)
}

// WalletTransaction is one movement of a wallet balance. It always references
// the ledger entry, order line or cashout that caused it.
type WalletTransaction struct {
	ID            int64                     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	WalletID      int64                     `gorm:"column:wallet_id;not null;uniqueIndex:ux_wallet_transactions_reference,priority:1" json:"wallet_id"`
	Type          enums.WalletEntryType     `gorm:"column:type;type:varchar(8);not null;uniqueIndex:ux_wallet_transactions_reference,priority:4" json:"type"`
	Amount        decimal.Decimal           `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	ReferenceType enums.WalletReferenceType `gorm:"column:reference_type;type:varchar(16);not null;uniqueIndex:ux_wallet_transactions_reference,priority:2" json:"reference_type"`
	ReferenceID   int64                     `gorm:"column:reference_id;not null;uniqueIndex:ux_wallet_transactions_reference,priority:3" json:"reference_id"`
	TransactionID *int64                    `gorm:"column:transaction_id;index" json:"transaction_id,omitempty"`
	Status        enums.WalletEntryStatus   `gorm:"column:status;type:varchar(16);not null" json:"status"`
	BalanceAfter  decimal.Decimal           `gorm:"column:balance_after;type:numeric(18,2);not null" json:"balance_after"`
	Note          string                    `gorm:"column:note;not null;default:''" json:"note"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
