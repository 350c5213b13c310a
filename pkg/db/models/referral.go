package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral links a referred identity to its referrer. ReferredAt anchors the
// benefit window; the row itself never changes.
type Referral struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReferrerID uuid.UUID `gorm:"column:referrer_id;type:uuid;not null;index"`
	ReferredID uuid.UUID `gorm:"column:referred_id;type:uuid;not null;uniqueIndex"`
	ReferredAt time.Time `gorm:"column:referred_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
