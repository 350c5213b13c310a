package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// PendingPayment is one proximity tap-to-pay handshake between a vendor
// device and a customer device. Rows expire five minutes after creation;
// terminal statuses never change again.
type PendingPayment struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	VendorID     uuid.UUID  `gorm:"column:vendor_id;type:uuid;not null;index"`
	CustomerID   uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	EventID      uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	TicketTypeID *uuid.UUID `gorm:"column:ticket_type_id;type:uuid"`

	AmountCents int                        `gorm:"column:amount_cents;not null"`
	Status      enums.PendingPaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ExpiresAt   time.Time                  `gorm:"column:expires_at;not null;index"`

	PaymentID   *uuid.UUID `gorm:"column:payment_id;type:uuid"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
