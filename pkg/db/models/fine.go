package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rmolina-dev/libris-backend/pkg/enums"
)

// Fine is a monetary penalty assessed against a member, usually tied to an
// overdue loan. The partial unique index on loan_id keeps at most one PENDING
// fine per loan.
type Fine struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	LoanID     *uuid.UUID       `gorm:"column:loan_id;type:uuid;index"`
	Amount     decimal.Decimal  `gorm:"column:amount;type:numeric(12,2);not null"`
	Status     enums.FineStatus `gorm:"column:status;type:fine_status_enum;not null;default:PENDING"`
	Reason     string           `gorm:"column:reason;type:text;not null"`
	WaivedByID *uuid.UUID       `gorm:"column:waived_by_id;type:uuid"`
	SettledAt  *time.Time       `gorm:"column:settled_at"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"column:updated_at;autoUpdateTime"`

	User *User `gorm:"foreignKey:UserID"`
	Loan *Loan `gorm:"foreignKey:LoanID"`
}
