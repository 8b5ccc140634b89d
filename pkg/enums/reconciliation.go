package enums

// ReconciliationSource names the flow that could not finish cleanly.
type ReconciliationSource string

const (
	ReconciliationSourceSettlement     ReconciliationSource = "settlement"
	ReconciliationSourcePaymentWebhook ReconciliationSource = "payment_webhook"
	ReconciliationSourcePayoutCallback ReconciliationSource = "payout_callback"
	ReconciliationSourceLedger         ReconciliationSource = "ledger"
)

// IsValid reports whether the value is a known ReconciliationSource.
func (r ReconciliationSource) IsValid() bool {
	switch r {
	case ReconciliationSourceSettlement,
		ReconciliationSourcePaymentWebhook,
		ReconciliationSourcePayoutCallback,
		ReconciliationSourceLedger:
		return true
	}
	return false
}

// ReconciliationStatus tracks operator follow-up on a queued item.
type ReconciliationStatus string

const (
	ReconciliationStatusOpen     ReconciliationStatus = "open"
	ReconciliationStatusResolved ReconciliationStatus = "resolved"
)

// IsValid reports whether the value is a known ReconciliationStatus.
func (r ReconciliationStatus) IsValid() bool {
	return r == ReconciliationStatusOpen || r == ReconciliationStatusResolved
}
