package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LoanCreatedEvent signals a successful borrow.
type LoanCreatedEvent struct {
	LoanID   uuid.UUID `json:"loan_id"`
	ItemID   uuid.UUID `json:"item_id"`
	UserID   uuid.UUID `json:"user_id"`
	DueDate  time.Time `json:"due_date"`
	LoanDate time.Time `json:"loan_date"`
}

// LoanReturnedEvent is emitted when a loan closes at the desk.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID `json:"loan_id"`
	ItemID     uuid.UUID `json:"item_id"`
	UserID     uuid.UUID `json:"user_id"`
	ReturnDate time.Time `json:"return_date"`
	WasOverdue bool      `json:"was_overdue"`
}

// LoanDueSoonEvent reminds the borrower before the due date.
type LoanDueSoonEvent struct {
	LoanID       uuid.UUID `json:"loan_id"`
	ItemID       uuid.UUID `json:"item_id"`
	UserID       uuid.UUID `json:"user_id"`
	DueDate      time.Time `json:"due_date"`
	DaysUntilDue int       `json:"days_until_due"`
}

// LoanOverdueEvent notifies the borrower of an overdue loan and the accrued amount.
type LoanOverdueEvent struct {
	LoanID        uuid.UUID       `json:"loan_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	UserID        uuid.UUID       `json:"user_id"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
	AccruedAmount decimal.Decimal `json:"accrued_amount"`
}

// ReservationPlacedEvent confirms a member joined the queue.
type ReservationPlacedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
	UserID        uuid.UUID `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ReservationCancelledEvent is emitted when a member withdraws from the queue.
type ReservationCancelledEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
	UserID        uuid.UUID `json:"user_id"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// ReservationAvailableEvent tells the queue head their item came back.
type ReservationAvailableEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	ItemID        uuid.UUID `json:"item_id"`
	UserID        uuid.UUID `json:"user_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// FineAssessedEvent reports a new pending fine.
type FineAssessedEvent struct {
	FineID uuid.UUID       `json:"fine_id"`
	LoanID *uuid.UUID      `json:"loan_id,omitempty"`
	UserID uuid.UUID       `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}
