package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// LedgerEntry is an append-only activity record. Rows are never updated or
// deleted after insert.
type LedgerEntry struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID    *uuid.UUID         `gorm:"column:user_id;type:uuid;index"`
	Action    enums.LedgerAction `gorm:"column:action;type:ledger_action_enum;not null"`
	Details   string             `gorm:"column:details;type:text;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime;index"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
