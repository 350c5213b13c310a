package enums

import "fmt"

// TicketStatus tracks the admission lifecycle of a ticket.
type TicketStatus string

const (
	TicketStatusValid     TicketStatus = "valid"
	TicketStatusUsed      TicketStatus = "used"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusRefunded  TicketStatus = "refunded"
)

var validTicketStatuses = []TicketStatus{
	TicketStatusValid,
	TicketStatusUsed,
	TicketStatusCancelled,
	TicketStatusRefunded,
}

// String implements fmt.Stringer.
func (t TicketStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TicketStatus.
func (t TicketStatus) IsValid() bool {
	for _, candidate := range validTicketStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the ticket lifecycle. A
// cancelled or refunded ticket never re-enters circulation.
func (t TicketStatus) IsTerminal() bool {
	return t == TicketStatusCancelled || t == TicketStatusRefunded
}

// ParseTicketStatus converts raw input into a TicketStatus.
func ParseTicketStatus(value string) (TicketStatus, error) {
	for _, candidate := range validTicketStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket status %q", value)
}
