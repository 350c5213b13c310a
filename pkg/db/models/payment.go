package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/stagedoor/stagedoor-backend/pkg/enums"
	"github.com/stagedoor/stagedoor-backend/pkg/types"
)

// Payment is a settlement ledger entry. It is opened pending when a charge
// intent is requested and resolved by the processor's asynchronous outcome.
// Metadata carries the type-specific references settlement needs (ticket
// type, listing, offer, or handshake id).
type Payment struct {
	ID      uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Type    enums.PaymentType `gorm:"column:type;type:text;not null"`
	PayerID uuid.UUID         `gorm:"column:payer_id;type:uuid;not null;index"`
	PayeeID *uuid.UUID        `gorm:"column:payee_id;type:uuid;index"`

	AmountCents      int                 `gorm:"column:amount_cents;not null"`
	PlatformFeeCents int                 `gorm:"column:platform_fee_cents;not null;default:0"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`

	ProcessorIntentID  *string `gorm:"column:processor_intent_id;index"`
	ProcessorChargeRef *string `gorm:"column:processor_charge_ref"`

	Metadata   types.JSONMap `gorm:"column:metadata;type:jsonb;serializer:json"`
	FailedAt   *time.Time    `gorm:"column:failed_at"`
	RefundedAt *time.Time    `gorm:"column:refunded_at"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time     `gorm:"column:updated_at;autoUpdateTime"`
}
