package enums

import "fmt"

// WalletEntryType is the direction of a wallet movement.
type WalletEntryType string

const (
	WalletEntryCredit WalletEntryType = "credit"
	WalletEntryDebit  WalletEntryType = "debit"
)

// IsValid reports whether the value is a known WalletEntryType.
func (t WalletEntryType) IsValid() bool {
	return t == WalletEntryCredit || t == WalletEntryDebit
}

// ParseWalletEntryType converts raw input into a WalletEntryType.
func ParseWalletEntryType(value string) (WalletEntryType, error) {
	t := WalletEntryType(value)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid wallet entry type %q", value)
	}
	return t, nil
}

// WalletReferenceType names what caused a wallet movement.
type WalletReferenceType string

const (
	WalletReferenceTransaction WalletReferenceType = "transaction"
	WalletReferenceOrderDetail WalletReferenceType = "order_detail"
	WalletReferenceCashout     WalletReferenceType = "cashout"
)

var validWalletReferenceTypes = []WalletReferenceType{
	WalletReferenceTransaction,
	WalletReferenceOrderDetail,
	WalletReferenceCashout,
}

// IsValid reports whether the value is a known WalletReferenceType.
func (r WalletReferenceType) IsValid() bool {
	for _, candidate := range validWalletReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseWalletReferenceType converts raw input into a WalletReferenceType.
func ParseWalletReferenceType(value string) (WalletReferenceType, error) {
	for _, candidate := range validWalletReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet reference type %q", value)
}

// WalletEntryStatus tracks whether a wallet movement has been applied.
type WalletEntryStatus string

const (
	WalletEntryStatusPending   WalletEntryStatus = "pending"
	WalletEntryStatusCompleted WalletEntryStatus = "completed"
	WalletEntryStatusFailed    WalletEntryStatus = "failed"
)

// IsValid reports whether the value is a known WalletEntryStatus.
func (s WalletEntryStatus) IsValid() bool {
	switch s {
	case WalletEntryStatusPending, WalletEntryStatusCompleted, WalletEntryStatusFailed:
		return true
	}
	return false
}
