package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// EventStaff grants a user a working role on one event.
type EventStaff struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventID   uuid.UUID       `gorm:"column:event_id;type:uuid;not null;index:idx_event_staff_event_user,unique"`
	UserID    uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index:idx_event_staff_event_user,unique"`
	Role      enums.StaffRole `gorm:"column:role;type:text;not null"`
	GrantedBy uuid.UUID       `gorm:"column:granted_by;type:uuid;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
