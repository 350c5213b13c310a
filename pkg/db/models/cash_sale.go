package models

import (
	"time"

	"github.com/google/uuid"
)

// CashSale records an in-person vendor_pos sale collected outside the card
// rails. The 5% platform fee is charged separately against the organizer's
// stored payment method; FeeCharged/FeeError track that attempt so a failed
// fee charge never blocks the sale itself from counting as collected.
type CashSale struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	SellerID     uuid.UUID  `gorm:"column:seller_id;type:uuid;not null;index"`
	OrganizerID  uuid.UUID  `gorm:"column:organizer_id;type:uuid;not null;index"`
	TicketID     *uuid.UUID `gorm:"column:ticket_id;type:uuid"`
	TicketTypeID *uuid.UUID `gorm:"column:ticket_type_id;type:uuid"`

	AmountCents  int        `gorm:"column:amount_cents;not null"`
	FeeCents     int        `gorm:"column:fee_cents;not null"`
	FeeCharged   bool       `gorm:"column:fee_charged;not null;default:false"`
	FeeError     *string    `gorm:"column:fee_error"`
	FeePaymentID *uuid.UUID `gorm:"column:fee_payment_id;type:uuid"`

	CollectedAt time.Time `gorm:"column:collected_at;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
