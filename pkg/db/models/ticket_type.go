package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketType is a priced tier within an event. SoldCount is the capacity
// ledger's denormalized counter: it only moves inside the same transaction
// that creates a ticket referencing this tier, or that transitions such a
// ticket into a terminal status. MaxQuantity nil means unlimited.
type TicketType struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID     uuid.UUID `gorm:"column:event_id;type:uuid;not null;index"`
	Name        string    `gorm:"column:name;not null"`
	PriceCents  int       `gorm:"column:price_cents;not null"`
	MaxQuantity *int      `gorm:"column:max_quantity"`
	SoldCount   int       `gorm:"column:sold_count;not null;default:0"`
	IsActive    bool      `gorm:"column:is_active;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
