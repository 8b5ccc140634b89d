package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// Cashout is a vendor request to withdraw wallet funds to a bank account.
type Cashout struct {
	ID                   int64               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VendorID             uuid.UUID           `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	WalletID             int64               `gorm:"column:wallet_id;not null;index" json:"wallet_id"`
	Amount               decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Currency             enums.Currency      `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	BankAccountID        int64               `gorm:"column:bank_account_id;not null" json:"bank_account_id"`
	Status               enums.CashoutStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	TransactionID        *int64              `gorm:"column:transaction_id" json:"transaction_id,omitempty"`
	GatewayTransactionID *string             `gorm:"column:gateway_transaction_id;type:varchar(128);uniqueIndex:ux_cashouts_gateway_transaction" json:"gateway_transaction_id,omitempty"`
	FailureReason        *string             `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	RequestedBy          uuid.UUID           `gorm:"column:requested_by;type:uuid;not null" json:"requested_by"`
	ProcessedAt          *time.Time          `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// Payout mirrors the gateway transfer executing a cashout. Bank fields are a
// snapshot taken when the payout is created.
type Payout struct {
	ID                    int64              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	CashoutID             int64              `gorm:"column:cashout_id;not null;uniqueIndex:ux_payouts_cashout" json:"cashout_id"`
	Amount                decimal.Decimal    `gorm:"column:amount;type:numeric(18,2);not null" json:"amount"`
	Currency              enums.Currency     `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	BankAccountNumber     string             `gorm:"column:bank_account_number;type:varchar(64);not null" json:"-"`
	BankAccountHolder     string             `gorm:"column:bank_account_holder;type:varchar(255);not null" json:"bank_account_holder"`
	BankRoutingNumber     string             `gorm:"column:bank_routing_number;type:varchar(64);not null;default:''" json:"-"`
	GatewayDestination    string             `gorm:"column:gateway_destination;type:varchar(128);not null;default:''" json:"gateway_destination"`
	Status                enums.PayoutStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ExternalTransactionID *string            `gorm:"column:external_transaction_id;type:varchar(128);uniqueIndex:ux_payouts_external_transaction" json:"external_transaction_id,omitempty"`
	FailureReason         *string            `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	SubmittedAt           *time.Time         `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	SettledAt             *time.Time         `gorm:"column:settled_at" json:"settled_at,omitempty"`
	CreatedAt             time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// BankAccount is a vendor's verified payout destination.
type BankAccount struct {
	ID                int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	VendorID          uuid.UUID `gorm:"column:vendor_id;type:uuid;not null;index" json:"vendor_id"`
	AccountHolder     string    `gorm:"column:account_holder;type:varchar(255);not null" json:"account_holder"`
	AccountNumber     string    `gorm:"column:account_number;type:varchar(64);not null" json:"-"`
	RoutingNumber     string    `gorm:"column:routing_number;type:varchar(64);not null;default:''" json:"-"`
	BankName          string    `gorm:"column:bank_name;type:varchar(255);not null;default:''" json:"bank_name"`
	GatewayAccountRef string    `gorm:"column:gateway_account_ref;type:varchar(128);not null;default:''" json:"-"`
	Verified          bool      `gorm:"column:verified;not null;default:false" json:"verified"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
