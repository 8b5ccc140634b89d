package enums

import "fmt"

// MovementType classifies a stock export.
type MovementType string

const (
	MovementTypeSale           MovementType = "sale"
	MovementTypeReturnToVendor MovementType = "return_to_vendor"
	MovementTypeDamage         MovementType = "damage"
	MovementTypeLoss           MovementType = "loss"
	MovementTypeAdjustment     MovementType = "adjustment"
)

var validMovementTypes = []MovementType{
	MovementTypeSale,
	MovementTypeReturnToVendor,
	MovementTypeDamage,
	MovementTypeLoss,
	MovementTypeAdjustment,
}

// String implements fmt.Stringer.
func (m MovementType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementType.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// RequiresOrderLine reports whether movements of this type must reference an order line.
func (m MovementType) RequiresOrderLine() bool {
	return m == MovementTypeSale
}

// ParseMovementType converts raw input into a MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
