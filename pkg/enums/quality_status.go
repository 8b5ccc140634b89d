package enums

import "fmt"

// QualityStatus tracks the inspection state of a received batch.
type QualityStatus string

const (
	QualityStatusPending     QualityStatus = "pending"
	QualityStatusPassed      QualityStatus = "passed"
	QualityStatusFailed      QualityStatus = "failed"
	QualityStatusNotRequired QualityStatus = "not_required"
)

var validQualityStatuses = []QualityStatus{
	QualityStatusPending,
	QualityStatusPassed,
	QualityStatusFailed,
	QualityStatusNotRequired,
}

// String implements fmt.Stringer.
func (q QualityStatus) String() string {
	return string(q)
}

// IsValid reports whether the value is a known QualityStatus.
func (q QualityStatus) IsValid() bool {
	for _, candidate := range validQualityStatuses {
		if candidate == q {
			return true
		}
	}
	return false
}

// Allocatable reports whether stock in a batch with this status may leave the warehouse.
func (q QualityStatus) Allocatable() bool {
	return q.IsValid() && q != QualityStatusFailed
}

// CanTransitionTo reports whether a quality check may move the batch to next.
// Only pending batches can be inspected; the outcome is final.
func (q QualityStatus) CanTransitionTo(next QualityStatus) bool {
	if q != QualityStatusPending {
		return false
	}
	return next == QualityStatusPassed || next == QualityStatusFailed
}

// ParseQualityStatus converts raw input into a QualityStatus.
func ParseQualityStatus(value string) (QualityStatus, error) {
	for _, candidate := range validQualityStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid quality status %q", value)
}
