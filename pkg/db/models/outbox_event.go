package models

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// OutboxEvent represents an append-only event emitted via the outbox pattern.
type OutboxEvent struct {
	ID            int64                     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventID       string                    `gorm:"column:event_id;type:varchar(36);not null;uniqueIndex:ux_outbox_events_event_id" json:"event_id"`
	EventType     enums.OutboxEventType     `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	AggregateType enums.OutboxAggregateType `gorm:"column:aggregate_type;type:varchar(64);not null" json:"aggregate_type"`
	AggregateID   int64                     `gorm:"column:aggregate_id;not null" json:"aggregate_id"`
	Payload       json.RawMessage           `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	PublishedAt   *time.Time                `gorm:"column:published_at;index" json:"published_at,omitempty"`
	AttemptCount  int                       `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	LastError     *string                   `gorm:"column:last_error" json:"last_error,omitempty"`
}

// OutboxDLQ keeps outbox rows the publisher gave up on.
type OutboxDLQ struct {
	ID            int64                      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventID       int64                      `gorm:"column:event_id;not null;uniqueIndex:ux_outbox_dlq_event_id" json:"event_id"`
	EventType     enums.OutboxEventType      `gorm:"column:event_type;type:varchar(64);not null" json:"event_type"`
	AggregateType enums.OutboxAggregateType  `gorm:"column:aggregate_type;type:varchar(64);not null" json:"aggregate_type"`
	AggregateID   int64                      `gorm:"column:aggregate_id;not null" json:"aggregate_id"`
	Payload       json.RawMessage            `gorm:"column:payload;type:jsonb;not null" json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `gorm:"column:error_reason;type:varchar(32);not null" json:"error_reason"`
	ErrorMessage  *string                    `gorm:"column:error_message" json:"error_message,omitempty"`
	AttemptCount  int                        `gorm:"column:attempt_count;not null;default:0" json:"attempt_count"`
	FailedAt      time.Time                  `gorm:"column:failed_at;not null" json:"failed_at"`
}

func (OutboxDLQ) TableName() string { return "outbox_dlq" }
