package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Ticket is the authoritative unit of ownership and admission state. Rows
// are never deleted; the status column is the audit trail. ListingStatus and
// ListingPriceCents mirror the active resale listing and are written only
// inside the same transaction as the listing mutation they reflect.
type Ticket struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID          `gorm:"column:event_id;type:uuid;not null;index"`
	TicketTypeID *uuid.UUID         `gorm:"column:ticket_type_id;type:uuid;index"`
	OwnerID      uuid.UUID          `gorm:"column:owner_id;type:uuid;not null;index"`
	OwnerEmail   string             `gorm:"column:owner_email;not null"`
	Status       enums.TicketStatus `gorm:"column:status;type:text;not null;default:'valid'"`
	Mode         enums.TicketMode   `gorm:"column:mode;type:text;not null;default:'standard'"`

	ListingStatus     enums.TicketListingStatus `gorm:"column:listing_status;type:text;not null;default:'none'"`
	ListingPriceCents *int                      `gorm:"column:listing_price_cents"`

	PaymentMethod  enums.PaymentMethod  `gorm:"column:payment_method;type:text;not null;default:'card'"`
	DeliveryMethod enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null;default:'digital'"`
	PaymentID      *uuid.UUID           `gorm:"column:payment_id;type:uuid"`

	TransferToken          *string    `gorm:"column:transfer_token;index"`
	TransferTokenExpiresAt *time.Time `gorm:"column:transfer_token_expires_at"`

	CheckedInAt *time.Time `gorm:"column:checked_in_at"`
	CancelledAt *time.Time `gorm:"column:cancelled_at"`
	RefundedAt  *time.Time `gorm:"column:refunded_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
