package models

import (
	"time"

	"github.com/google/uuid"
)

// Event is a sellable happening owned by an organizer identity. The engine
// only needs the organizer reference and scheduling window; everything else
// about the event lives with the listing frontend.
type Event struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrganizerID uuid.UUID  `gorm:"column:organizer_id;type:uuid;not null;index"`
	Name        string     `gorm:"column:name;not null"`
	Venue       *string    `gorm:"column:venue"`
	StartsAt    time.Time  `gorm:"column:starts_at;not null"`
	EndsAt      *time.Time `gorm:"column:ends_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
