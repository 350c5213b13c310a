package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Notification is an in-app message delivered at-most-once. Failures to
// write one are logged and never retried.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null"`
	Title     string                 `gorm:"column:title;not null"`
	Body      string                 `gorm:"column:body;not null"`
	Data      types.JSONMap          `gorm:"column:data;type:jsonb;serializer:json"`
	ReadAt    *time.Time             `gorm:"column:read_at"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
}
