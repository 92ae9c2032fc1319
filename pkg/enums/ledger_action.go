package enums

import "fmt"

// LedgerAction maps to the ledger_action_enum enum in Postgres.
type LedgerAction string

const (
	LedgerActionLoanCreated          LedgerAction = "LOAN_CREATED"
	LedgerActionLoanReturned         LedgerAction = "LOAN_RETURNED"
	LedgerActionLoanRenewed          LedgerAction = "LOAN_RENEWED"
	LedgerActionReturnRequested      LedgerAction = "RETURN_REQUESTED"
	LedgerActionReservationPlaced    LedgerAction = "RESERVATION_PLACED"
	LedgerActionReservationCancelled LedgerAction = "RESERVATION_CANCELLED"
	LedgerActionReservationExpired   LedgerAction = "RESERVATION_EXPIRED"
	LedgerActionFineApplied          LedgerAction = "FINE_APPLIED"
	LedgerActionFinePaid             LedgerAction = "FINE_PAID"
	LedgerActionFineWaived           LedgerAction = "FINE_WAIVED"
	LedgerActionItemAdded            LedgerAction = "ITEM_ADDED"
	LedgerActionItemArchived         LedgerAction = "ITEM_ARCHIVED"
	LedgerActionItemUnarchived       LedgerAction = "ITEM_UNARCHIVED"
)

var validLedgerActions = []LedgerAction{
	LedgerActionLoanCreated,
	LedgerActionLoanReturned,
	LedgerActionLoanRenewed,
	LedgerActionReturnRequested,
	LedgerActionReservationPlaced,
	LedgerActionReservationCancelled,
	LedgerActionReservationExpired,
	LedgerActionFineApplied,
	LedgerActionFinePaid,
	LedgerActionFineWaived,
	LedgerActionItemAdded,
	LedgerActionItemArchived,
	LedgerActionItemUnarchived,
}

// IsValid reports whether the value matches the canonical ledger action enum.
func (a LedgerAction) IsValid() bool {
	for _, candidate := range validLedgerActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseLedgerAction converts raw input into LedgerAction.
func ParseLedgerAction(value string) (LedgerAction, error) {
	for _, candidate := range validLedgerActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger action %q", value)
}
