package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/types"
)

// LineInput is one product line of a new order.
type LineInput struct {
	ProductID    uuid.UUID
	Quantity     int
	UnitPrice    decimal.Decimal
	Discount     decimal.Decimal
	Attributes   types.AttributeMap
	PreferredLot *string
}

// CreateOrderInput carries everything needed to open an order with one vendor.
type CreateOrderInput struct {
	CustomerID      uuid.UUID
	VendorID        uuid.UUID
	Lines           []LineInput
	Discount        decimal.Decimal
	Currency        enums.Currency
	ShippingAddress types.Address
	Note            *string
	ActorID         uuid.UUID
}

// TransitionInput asks for a status change.
type TransitionInput struct {
	OrderID int64
	To      enums.OrderStatus
	ActorID uuid.UUID
	Reason  string
	// Restock applies to refunds only.
	Restock bool
}

// RefundInput drives the delivered → refunded workflow.
type RefundInput struct {
	OrderID int64
	ActorID uuid.UUID
	Restock bool
	Reason  string
}

// UpdateLineInput changes the quantity of one line. Zero removes the line.
type UpdateLineInput struct {
	OrderID  int64
	DetailID int64
	Quantity int
	ActorID  uuid.UUID
}

// LineUpdateResult reports what a line update did. OrderRemoved means the last
// line went away and the order no longer exists as an open order; Order is nil
// when the row was deleted.
type LineUpdateResult struct {
	Order        *models.Order
	LineRemoved  bool
	OrderRemoved bool
}

// ListFilter narrows the order listing.
type ListFilter struct {
	VendorID   *uuid.UUID
	CustomerID *uuid.UUID
	Status     *enums.OrderStatus
}

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
