package enums

import "fmt"

// TicketMode controls whether a ticket may ever reach the resale ledger.
// Private tickets are gift-only and resale-ineligible; the mode is immutable
// once the ticket is minted.
type TicketMode string

const (
	TicketModeStandard TicketMode = "standard"
	TicketModePrivate  TicketMode = "private"
	TicketModePublic   TicketMode = "public"
)

var validTicketModes = []TicketMode{
	TicketModeStandard,
	TicketModePrivate,
	TicketModePublic,
}

// String implements fmt.Stringer.
func (t TicketMode) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TicketMode.
func (t TicketMode) IsValid() bool {
	for _, candidate := range validTicketModes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ResaleEligible reports whether tickets of this mode may be listed.
func (t TicketMode) ResaleEligible() bool {
	return t == TicketModeStandard || t == TicketModePublic
}

// ParseTicketMode converts raw input into a TicketMode.
func ParseTicketMode(value string) (TicketMode, error) {
	for _, candidate := range validTicketModes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ticket mode %q", value)
}
