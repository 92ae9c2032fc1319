package models

import (
	"time"

	"github.com/google/uuid"
)

// Loan records a borrow of a library item by a member. ReturnDate nil means
// the loan is open; the partial unique index on item_id enforces at most one
// open loan per item.
type Loan struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ItemID            uuid.UUID  `gorm:"column:item_id;type:uuid;not null;index"`
	UserID            uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	LoanDate          time.Time  `gorm:"column:loan_date;not null"`
	DueDate           time.Time  `gorm:"column:due_date;not null"`
	ReturnDate        *time.Time `gorm:"column:return_date"`
	RenewalCount      int        `gorm:"column:renewal_count;not null;default:0"`
	ReturnRequestedAt *time.Time `gorm:"column:return_requested_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`

	Item *LibraryItem `gorm:"foreignKey:ItemID"`
	User *User        `gorm:"foreignKey:UserID"`
}

// IsOpen reports whether the item has not been returned yet.
func (l *Loan) IsOpen() bool {
	return l.ReturnDate == nil
}

// IsOverdue reports whether an open loan is past its due date at now.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.IsOpen() && now.After(l.DueDate)
}
