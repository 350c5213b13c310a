package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// TicketOffer is an organizer-initiated gift/comp grant addressed to an
// email. RecipientID is filled immediately when the email already maps to a
// known identity, or lazily when that email registers later. Acceptance is
// the only transition that also sets TicketID.
type TicketOffer struct {
	ID           uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID      uuid.UUID  `gorm:"column:event_id;type:uuid;not null;index"`
	TicketTypeID *uuid.UUID `gorm:"column:ticket_type_id;type:uuid"`
	OrganizerID  uuid.UUID  `gorm:"column:organizer_id;type:uuid;not null;index"`

	RecipientEmail string     `gorm:"column:recipient_email;not null;index"`
	RecipientID    *uuid.UUID `gorm:"column:recipient_id;type:uuid;index"`

	PriceCents int               `gorm:"column:price_cents;not null;default:0"`
	Mode       enums.TicketMode  `gorm:"column:mode;type:text;not null;default:'private'"`
	Status     enums.OfferStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ExpiresAt  time.Time         `gorm:"column:expires_at;not null"`

	TicketID   *uuid.UUID `gorm:"column:ticket_id;type:uuid"`
	ResolvedAt *time.Time `gorm:"column:resolved_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
