package models

import (
	"time"

	"github.com/google/uuid"
)

// Reservation is a member's place in line for an item. Fulfilled covers every
// closed outcome (fulfilled, cancelled, expired); the ledger narrative records
// which path closed it.
type Reservation struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ItemID     uuid.UUID `gorm:"column:item_id;type:uuid;not null;index"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	ReservedAt time.Time `gorm:"column:reserved_at;not null"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null"`
	Fulfilled  bool      `gorm:"column:fulfilled;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Item *LibraryItem `gorm:"foreignKey:ItemID"`
	User *User        `gorm:"foreignKey:UserID"`
}
