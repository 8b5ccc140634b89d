package enums

import "fmt"

// CashoutStatus tracks a vendor withdrawal request.
type CashoutStatus string

const (
	CashoutStatusPending    CashoutStatus = "pending"
	CashoutStatusProcessing CashoutStatus = "processing"
	CashoutStatusCompleted  CashoutStatus = "completed"
	CashoutStatusFailed     CashoutStatus = "failed"
	CashoutStatusCancelled  CashoutStatus = "cancelled"
)

var validCashoutStatuses = []CashoutStatus{
	CashoutStatusPending,
	CashoutStatusProcessing,
	CashoutStatusCompleted,
	CashoutStatusFailed,
	CashoutStatusCancelled,
}

// OpenCashoutStatuses lists the states that still hold a wallet reservation.
var OpenCashoutStatuses = []CashoutStatus{CashoutStatusPending, CashoutStatusProcessing}

var cashoutTransitions = map[CashoutStatus][]CashoutStatus{
	CashoutStatusPending:    {CashoutStatusProcessing, CashoutStatusFailed, CashoutStatusCancelled},
	CashoutStatusProcessing: {CashoutStatusCompleted, CashoutStatusFailed, CashoutStatusCancelled},
}

// String implements fmt.Stringer.
func (c CashoutStatus) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CashoutStatus.
func (c CashoutStatus) IsValid() bool {
	for _, candidate := range validCashoutStatuses {
		if candidate == c {
			return true
		}
	}
	return false
}

// IsOpen reports whether the cashout still holds a wallet reservation.
func (c CashoutStatus) IsOpen() bool {
	return c == CashoutStatusPending || c == CashoutStatusProcessing
}

// CanTransitionTo reports whether the cashout may move from c to next.
func (c CashoutStatus) CanTransitionTo(next CashoutStatus) bool {
	for _, candidate := range cashoutTransitions[c] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseCashoutStatus converts raw input into a CashoutStatus.
func ParseCashoutStatus(value string) (CashoutStatus, error) {
	for _, candidate := range validCashoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cashout status %q", value)
}
