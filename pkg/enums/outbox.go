package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder          OutboxAggregateType = "order"
	AggregateBatch          OutboxAggregateType = "batch_inventory"
	AggregateWallet         OutboxAggregateType = "wallet"
	AggregateCashout        OutboxAggregateType = "cashout"
	AggregateReconciliation OutboxAggregateType = "reconciliation_item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateBatch,
	AggregateWallet,
	AggregateCashout,
	AggregateReconciliation,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventOrderLineRemoved       OutboxEventType = "order_line_removed"
	EventStockMovementRecorded  OutboxEventType = "stock_movement_recorded"
	EventBatchQualityChecked    OutboxEventType = "batch_quality_checked"
	EventWalletCredited         OutboxEventType = "wallet_credited"
	EventWalletDebited          OutboxEventType = "wallet_debited"
	EventCashoutRequested       OutboxEventType = "cashout_requested"
	EventCashoutSettled         OutboxEventType = "cashout_settled"
	EventReconciliationRequired OutboxEventType = "reconciliation_required"
)

var validEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventOrderLineRemoved,
	EventStockMovementRecorded,
	EventBatchQualityChecked,
	EventWalletCredited,
	EventWalletDebited,
	EventCashoutRequested,
	EventCashoutSettled,
	EventReconciliationRequired,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason classifies why an outbox row was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
)
