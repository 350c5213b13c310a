package enums

import "fmt"

// PendingPaymentStatus drives the proximity handshake state machine:
// pending -> processing -> completed|failed, plus pending -> cancelled|expired.
type PendingPaymentStatus string

const (
	PendingPaymentStatusPending    PendingPaymentStatus = "pending"
	PendingPaymentStatusProcessing PendingPaymentStatus = "processing"
	PendingPaymentStatusCompleted  PendingPaymentStatus = "completed"
	PendingPaymentStatusFailed     PendingPaymentStatus = "failed"
	PendingPaymentStatusExpired    PendingPaymentStatus = "expired"
	PendingPaymentStatusCancelled  PendingPaymentStatus = "cancelled"
)

var validPendingPaymentStatuses = []PendingPaymentStatus{
	PendingPaymentStatusPending,
	PendingPaymentStatusProcessing,
	PendingPaymentStatusCompleted,
	PendingPaymentStatusFailed,
	PendingPaymentStatusExpired,
	PendingPaymentStatusCancelled,
}

// String implements fmt.Stringer.
func (p PendingPaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PendingPaymentStatus.
func (p PendingPaymentStatus) IsValid() bool {
	for _, candidate := range validPendingPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the handshake can no longer change state.
func (p PendingPaymentStatus) IsTerminal() bool {
	switch p {
	case PendingPaymentStatusCompleted,
		PendingPaymentStatusFailed,
		PendingPaymentStatusExpired,
		PendingPaymentStatusCancelled:
		return true
	}
	return false
}

// ParsePendingPaymentStatus converts raw input into a PendingPaymentStatus.
func ParsePendingPaymentStatus(value string) (PendingPaymentStatus, error) {
	for _, candidate := range validPendingPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pending payment status %q", value)
}
