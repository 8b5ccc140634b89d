package enums

import "fmt"

// SerialStatus tracks a single serialized unit.
type SerialStatus string

const (
	SerialStatusStock  SerialStatus = "stock"
	SerialStatusSold   SerialStatus = "sold"
	SerialStatusRefund SerialStatus = "refund"
)

var validSerialStatuses = []SerialStatus{
	SerialStatusStock,
	SerialStatusSold,
	SerialStatusRefund,
}

// ExportableSerialStatuses lists the states a serial may leave the warehouse
// from. A refunded unit stays out of sellable stock.
var ExportableSerialStatuses = []SerialStatus{SerialStatusStock}

// String implements fmt.Stringer.
func (s SerialStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SerialStatus.
func (s SerialStatus) IsValid() bool {
	for _, candidate := range validSerialStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Exportable reports whether the serial can be exported again.
func (s SerialStatus) Exportable() bool {
	for _, candidate := range ExportableSerialStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSerialStatus converts raw input into a SerialStatus.
func ParseSerialStatus(value string) (SerialStatus, error) {
	for _, candidate := range validSerialStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid serial status %q", value)
}
