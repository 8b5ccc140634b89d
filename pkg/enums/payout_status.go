package enums

import "fmt"

// PayoutStatus mirrors the payment gateway's view of a transfer.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusSucceeded  PayoutStatus = "succeeded"
	PayoutStatusFailed     PayoutStatus = "failed"
)

var validPayoutStatuses = []PayoutStatus{
	PayoutStatusPending,
	PayoutStatusProcessing,
	PayoutStatusSucceeded,
	PayoutStatusFailed,
}

// IsValid reports whether the value is a known PayoutStatus.
func (p PayoutStatus) IsValid() bool {
	for _, candidate := range validPayoutStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsFinal reports whether the gateway has settled the payout one way or the other.
func (p PayoutStatus) IsFinal() bool {
	return p == PayoutStatusSucceeded || p == PayoutStatusFailed
}

// ParsePayoutStatus converts raw input into a PayoutStatus.
func ParsePayoutStatus(value string) (PayoutStatus, error) {
	for _, candidate := range validPayoutStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payout status %q", value)
}

// PaymentEventStatus is the outcome reported by a payment gateway webhook.
type PaymentEventStatus string

const (
	PaymentEventSucceeded PaymentEventStatus = "succeeded"
	PaymentEventFailed    PaymentEventStatus = "failed"
)

// IsValid reports whether the value is a known PaymentEventStatus.
func (p PaymentEventStatus) IsValid() bool {
	return p == PaymentEventSucceeded || p == PaymentEventFailed
}

// ParsePaymentEventStatus converts raw input into a PaymentEventStatus.
func ParsePaymentEventStatus(value string) (PaymentEventStatus, error) {
	p := PaymentEventStatus(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid payment event status %q", value)
	}
	return p, nil
}
