package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// OrderCreatedEvent signals a new order.
type OrderCreatedEvent struct {
	OrderID    int64             `json:"order_id"`
	CustomerID string            `json:"customer_id"`
	VendorID   string            `json:"vendor_id"`
	Status     enums.OrderStatus `json:"status"`
	Total      decimal.Decimal   `json:"total"`
	Currency   enums.Currency    `json:"currency"`
	LineCount  int               `json:"line_count"`
	Allocated  bool              `json:"allocated"`
}

// OrderStatusChangedEvent is emitted on every accepted status transition.
type OrderStatusChangedEvent struct {
	OrderID   int64             `json:"order_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	Reason    string            `json:"reason,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderLineRemovedEvent is emitted when a line quantity drops to zero.
type OrderLineRemovedEvent struct {
	OrderID       int64 `json:"order_id"`
	OrderDetailID int64 `json:"order_detail_id"`
	OrderRemoved  bool  `json:"order_removed"`
}

// StockMovementRecordedEvent describes one export movement.
type StockMovementRecordedEvent struct {
	MovementID    int64              `json:"movement_id"`
	Type          enums.MovementType `json:"type"`
	ProductID     uuid.UUID          `json:"product_id"`
	BatchID       int64              `json:"batch_id"`
	LotNumber     string             `json:"lot_number"`
	SerialID      *int64             `json:"serial_id,omitempty"`
	OrderDetailID *int64             `json:"order_detail_id,omitempty"`
	ReversalOfID  *int64             `json:"reversal_of_id,omitempty"`
	Quantity      int                `json:"quantity"`
	Refunded      int                `json:"refunded,omitempty"`
}

// BatchQualityCheckedEvent reports a QC verdict on a lot.
type BatchQualityCheckedEvent struct {
	BatchID   int64               `json:"batch_id"`
	ProductID uuid.UUID           `json:"product_id"`
	LotNumber string              `json:"lot_number"`
	Status    enums.QualityStatus `json:"status"`
}

// WalletCreditedEvent is emitted for each settled order line.
type WalletCreditedEvent struct {
	WalletID      int64           `json:"wallet_id"`
	VendorID      string          `json:"vendor_id"`
	OrderDetailID int64           `json:"order_detail_id"`
	TransactionID int64           `json:"transaction_id"`
	Gross         decimal.Decimal `json:"gross"`
	Commission    decimal.Decimal `json:"commission"`
	Net           decimal.Decimal `json:"net"`
	Currency      enums.Currency  `json:"currency"`
}

// WalletDebitedEvent is emitted when a cashout debit is committed.
type WalletDebitedEvent struct {
	WalletID  int64           `json:"wallet_id"`
	VendorID  string          `json:"vendor_id"`
	CashoutID int64           `json:"cashout_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  enums.Currency  `json:"currency"`
}

// CashoutRequestedEvent is emitted when a vendor requests a withdrawal.
type CashoutRequestedEvent struct {
	CashoutID     int64           `json:"cashout_id"`
	WalletID      int64           `json:"wallet_id"`
	VendorID      string          `json:"vendor_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      enums.Currency  `json:"currency"`
	BankAccountID int64           `json:"bank_account_id"`
}

// CashoutSettledEvent reports the terminal outcome of a cashout.
type CashoutSettledEvent struct {
	CashoutID int64               `json:"cashout_id"`
	WalletID  int64               `json:"wallet_id"`
	Status    enums.CashoutStatus `json:"status"`
	Amount    decimal.Decimal     `json:"amount"`
	Reason    string              `json:"reason,omitempty"`
}

// ReconciliationRequiredEvent surfaces an inconsistency for operators.
type ReconciliationRequiredEvent struct {
	ItemID    int64                      `json:"item_id"`
	Source    enums.ReconciliationSource `json:"source"`
	Reference string                     `json:"reference"`
	Reason    string                     `json:"reason"`
}
