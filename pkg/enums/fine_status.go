package enums

import "fmt"

// FineStatus maps to the fine_status_enum enum in Postgres.
// Transitions are monotone: PENDING may move to PAID or WAIVED, both terminal.
type FineStatus string

const (
	FineStatusPending FineStatus = "PENDING"
	FineStatusPaid    FineStatus = "PAID"
	FineStatusWaived  FineStatus = "WAIVED"
)

var validFineStatuses = []FineStatus{
	FineStatusPending,
	FineStatusPaid,
	FineStatusWaived,
}

// IsValid reports whether the value matches the canonical fine status enum.
func (s FineStatus) IsValid() bool {
	for _, candidate := range validFineStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s FineStatus) IsTerminal() bool {
	return s == FineStatusPaid || s == FineStatusWaived
}

// ParseFineStatus converts raw input into FineStatus.
func ParseFineStatus(value string) (FineStatus, error) {
	for _, candidate := range validFineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fine status %q", value)
}
