package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// LibraryItem is a circulating catalog entity (book, DVD, equipment).
// Status stays consistent with the open-loan invariant: BORROWED iff exactly
// one loan with a null return date references the item.
type LibraryItem struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Title      string           `gorm:"column:title;type:text;not null"`
	Type       enums.ItemType   `gorm:"column:type;type:item_type_enum;not null"`
	Status     enums.ItemStatus `gorm:"column:status;type:item_status_enum;not null;default:AVAILABLE"`
	IsArchived bool             `gorm:"column:is_archived;not null;default:false"`
	Barcode    *string          `gorm:"column:barcode;type:text"`
	Location   *string          `gorm:"column:location;type:text"`
	Metadata   json.RawMessage  `gorm:"column:metadata;type:jsonb"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName keeps the historical table name.
func (LibraryItem) TableName() string {
	return "library_items"
}
