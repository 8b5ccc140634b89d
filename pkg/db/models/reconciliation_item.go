package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketledger-backend/pkg/enums"
)

// ReconciliationItem is a flow that failed in a way an operator must review.
type ReconciliationItem struct {
	ID             int64                      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Source         enums.ReconciliationSource `gorm:"column:source;type:varchar(32);not null;index" json:"source"`
	Reference      string                     `gorm:"column:reference;type:varchar(128);not null" json:"reference"`
	ErrorCode      string                     `gorm:"column:error_code;type:varchar(64);not null" json:"error_code"`
	Reason         string                     `gorm:"column:reason;not null" json:"reason"`
	Payload        json.RawMessage            `gorm:"column:payload;type:jsonb" json:"payload"`
	Status         enums.ReconciliationStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ResolvedBy     *uuid.UUID                 `gorm:"column:resolved_by;type:uuid" json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time                 `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	ResolutionNote *string                    `gorm:"column:resolution_note" json:"resolution_note,omitempty"`
	CreatedAt      time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
