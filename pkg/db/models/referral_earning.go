package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReferralEarning is an append-only audit row recording the discount and
// revenue-share percentages actually applied to one transaction. The
// percentages are snapshots: later changes to the global referral
// configuration never touch them.
type ReferralEarning struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReferrerID uuid.UUID  `gorm:"column:referrer_id;type:uuid;not null;index"`
	ReferredID uuid.UUID  `gorm:"column:referred_id;type:uuid;not null;index"`
	PaymentID  *uuid.UUID `gorm:"column:payment_id;type:uuid"`

	DiscountPercentApplied     decimal.Decimal `gorm:"column:discount_percent_applied;type:numeric(6,4);not null"`
	RevenueSharePercentApplied decimal.Decimal `gorm:"column:revenue_share_percent_applied;type:numeric(6,4);not null"`
	ShareAmountCents           int             `gorm:"column:share_amount_cents;not null;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
