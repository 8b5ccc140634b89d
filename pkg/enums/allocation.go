package enums

import (
	"fmt"
	"strings"
)

// AllocationPolicy selects the order lifecycle point where stock is exported.
type AllocationPolicy string

const (
	AllocateOnConfirmation AllocationPolicy = "confirmation"
	AllocateOnCreation     AllocationPolicy = "creation"
)

// IsValid reports whether the value is a known AllocationPolicy.
func (a AllocationPolicy) IsValid() bool {
	return a == AllocateOnConfirmation || a == AllocateOnCreation
}

// ParseAllocationPolicy converts raw config input into an AllocationPolicy.
func ParseAllocationPolicy(value string) (AllocationPolicy, error) {
	a := AllocationPolicy(strings.ToLower(strings.TrimSpace(value)))
	if a == "" {
		return AllocateOnConfirmation, nil
	}
	if !a.IsValid() {
		return "", fmt.Errorf("invalid allocation policy %q", value)
	}
	return a, nil
}

// LotStrategy orders candidate lots when a sale is not pinned to a specific lot.
type LotStrategy string

const (
	// LotStrategyFIFO exports the oldest received lot first.
	LotStrategyFIFO LotStrategy = "fifo"
	// LotStrategyFEFO exports the lot closest to expiry first.
	LotStrategyFEFO LotStrategy = "fefo"
)

// IsValid reports whether the value is a known LotStrategy.
func (l LotStrategy) IsValid() bool {
	return l == LotStrategyFIFO || l == LotStrategyFEFO
}

// ParseLotStrategy converts raw config input into a LotStrategy.
func ParseLotStrategy(value string) (LotStrategy, error) {
	l := LotStrategy(strings.ToLower(strings.TrimSpace(value)))
	if l == "" {
		return LotStrategyFIFO, nil
	}
	if !l.IsValid() {
		return "", fmt.Errorf("invalid lot strategy %q", value)
	}
	return l, nil
}
