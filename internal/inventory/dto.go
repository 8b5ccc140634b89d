package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ReceiveBatchInput registers a newly received lot.
type ReceiveBatchInput struct {
	ProductID         uuid.UUID
	VendorID          uuid.UUID
	LotNumber         string
	Quantity          int
	UnitCost          decimal.Decimal
	ExpiryDate        *time.Time
	ManufacturingDate *time.Time
	// QualityStatus defaults to pending; not_required skips inspection.
	QualityStatus enums.QualityStatus
	Serials       []string
}

// QualityCheckInput records an inspection verdict on a pending batch.
type QualityCheckInput struct {
	BatchID   int64
	Status    enums.QualityStatus
	CheckedBy uuid.UUID
	Note      *string
}

// Availability is the exportable stock of one product.
type Availability struct {
	ProductID uuid.UUID
	// Lots maps lot number to remaining quantity for non-serialized lots.
	Lots map[string]int
	// Serials maps serial number to its lot for serialized lots.
	Serials map[string]string
}

// Total returns the number of units that may still leave the warehouse.
func (a Availability) Total() int {
	total := len(a.Serials)
	for _, qty := range a.Lots {
		total += qty
	}
	return total
}

// MovementInput describes a single export out of a lot or a serial.
type MovementInput struct {
	ProductID uuid.UUID
	// LotOrSerial is resolved as a serial number first, then as a lot number.
	LotOrSerial   string
	Quantity      int
	Type          enums.MovementType
	OrderDetailID *int64
	ActorID       uuid.UUID
	Note          *string
}

// AllocationInput asks for quantity units of a product for one order line.
type AllocationInput struct {
	ProductID     uuid.UUID
	Quantity      int
	OrderDetailID int64
	PreferredLot  *string
	Strategy      enums.LotStrategy
	ActorID       uuid.UUID
}

// RefundInput returns part of a sale movement.
type RefundInput struct {
	MovementID int64
	Quantity   int
	// Restock puts lot units back into the batch. Serial refunds always restock.
	Restock bool
	ActorID uuid.UUID
}
