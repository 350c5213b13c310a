package enums

import "fmt"

// TicketListingStatus is the denormalized resale state cached on the ticket
// row. It mirrors the active ResaleListing and is only ever written inside
// the same transaction as the listing mutation it reflects.
type TicketListingStatus string

const (
	TicketListingStatusNone      TicketListingStatus = "none"
	TicketListingStatusListed    TicketListingStatus = "listed"
	TicketListingStatusSold      TicketListingStatus = "sold"
	TicketListingStatusCancelled TicketListingStatus = "cancelled"
)

var validTicketListingStatuses = []TicketListingStatus{
	TicketListingStatusNone,
	TicketListingStatusListed,
	TicketListingStatusSold,
	TicketListingStatusCancelled,
}

// String implements fmt.Stringer.
func (t TicketListingStatus) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TicketListingStatus.
func (t TicketListingStatus) IsValid() bool {
	for _, candidate := range validTicketListingStatuses {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTicketListingStatus converts raw input into a TicketListingStatus.
func ParseTicketListingStatus(value string) (TicketListingStatus, error) {
	for _, candidate := range validTicketListingStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket listing status %q", value)
}
