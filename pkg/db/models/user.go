package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// User is the canonical identity entity. Account management lives outside
// this service; circulation only reads users.
type User struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Email     string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name      string         `gorm:"column:name;type:text;not null"`
	Role      enums.UserRole `gorm:"column:role;type:user_role_enum;not null;default:MEMBER"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
