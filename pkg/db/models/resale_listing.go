package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// ResaleListing is a seller's offer against a single ticket. The schema
// carries a partial unique index over (ticket_id) where status = 'active'
// (ux_resale_listings_active_ticket), so at most one active listing can
// exist per ticket no matter how many writers race the insert.
type ResaleListing struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TicketID      uuid.UUID           `gorm:"column:ticket_id;type:uuid;not null;index"`
	SellerID      uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	PriceCents    int                 `gorm:"column:price_cents;not null"`
	Status        enums.ListingStatus `gorm:"column:status;type:text;not null;default:'active'"`
	SoldPaymentID *uuid.UUID          `gorm:"column:sold_payment_id;type:uuid"`
	RefundFlagged bool                `gorm:"column:refund_flagged;not null;default:false"`
	CancelledAt   *time.Time          `gorm:"column:cancelled_at"`
	SoldAt        *time.Time          `gorm:"column:sold_at"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
