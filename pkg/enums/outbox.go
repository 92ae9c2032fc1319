package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type_enum enum in Postgres.
type OutboxAggregateType string

const (
	AggregateLoan        OutboxAggregateType = "loan"
	AggregateReservation OutboxAggregateType = "reservation"
	AggregateFine        OutboxAggregateType = "fine"
	AggregateItem        OutboxAggregateType = "item"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateLoan,
	AggregateReservation,
	AggregateFine,
	AggregateItem,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type_enum enum in Postgres.
type OutboxEventType string

const (
	EventLoanCreated          OutboxEventType = "loan_created"
	EventLoanReturned         OutboxEventType = "loan_returned"
	EventLoanDueSoon          OutboxEventType = "loan_due_soon"
	EventLoanOverdue          OutboxEventType = "loan_overdue"
	EventReservationPlaced    OutboxEventType = "reservation_placed"
	EventReservationCancelled OutboxEventType = "reservation_cancelled"
	EventReservationAvailable OutboxEventType = "reservation_available"
	EventFineAssessed         OutboxEventType = "fine_assessed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventLoanCreated,
	EventLoanReturned,
	EventLoanDueSoon,
	EventLoanOverdue,
	EventReservationPlaced,
	EventReservationCancelled,
	EventReservationAvailable,
	EventFineAssessed,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
