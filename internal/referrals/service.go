package referrals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/config"
	"github.com/stagedoor/stagedoor-backend/pkg/db"
	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	pkgerrors "github.com/stagedoor/stagedoor-backend/pkg/errors"
)

// Context is a point-in-time snapshot of a buyer's active referral benefit.
// The percentages are the values in effect at the moment the snapshot was
// taken; they are what gets recorded into ReferralEarning, independent of
// any later configuration change.
type Context struct {
	ReferrerID          uuid.UUID
	ReferredID          uuid.UUID
	DiscountPercent     decimal.Decimal
	RevenueSharePercent decimal.Decimal
}

// Service defines referral linkage and benefit-window resolution.
type Service interface {
	Link(ctx context.Context, referrerID, referredID uuid.UUID, referredAt time.Time) (*models.Referral, error)
	ActiveContext(ctx context.Context, buyerID uuid.UUID, at time.Time) (*Context, error)
	RecordEarning(ctx context.Context, tx *gorm.DB, snapshot Context, paymentID *uuid.UUID, shareAmountCents int) error
	ListEarnings(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error)
}

type service struct {
	repo                Repository
	enabled             bool
	discountPercent     decimal.Decimal
	revenueSharePercent decimal.Decimal
	benefitDuration     time.Duration
}

// NewService wires a referral service with the current global configuration.
func NewService(repo Repository, cfg config.ReferralConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("referrals repository required")
	}
	discount, err := decimal.NewFromString(cfg.DiscountPercent)
	if err != nil {
		return nil, fmt.Errorf("invalid referral discount percent %q: %w", cfg.DiscountPercent, err)
	}
	share, err := decimal.NewFromString(cfg.RevenueSharePercent)
	if err != nil {
		return nil, fmt.Errorf("invalid referral revenue share percent %q: %w", cfg.RevenueSharePercent, err)
	}
	if cfg.BenefitDurationDays <= 0 {
		return nil, fmt.Errorf("referral benefit duration must be positive")
	}
	return &service{
		repo:                repo,
		enabled:             cfg.Enabled,
		discountPercent:     discount,
		revenueSharePercent: share,
		benefitDuration:     time.Duration(cfg.BenefitDurationDays) * 24 * time.Hour,
	}, nil
}

func (s *service) Link(ctx context.Context, referrerID, referredID uuid.UUID, referredAt time.Time) (*models.Referral, error) {
	if referrerID == uuid.Nil || referredID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer and referred ids are required")
	}
	if referrerID == referredID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a user cannot refer themselves")
	}
	referral := &models.Referral{
		ReferrerID: referrerID,
		ReferredID: referredID,
		ReferredAt: referredAt.UTC(),
	}
	if err := s.repo.Create(ctx, referral); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already referred")
		}
		return nil, err
	}
	return referral, nil
}

// ActiveContext returns nil when the buyer has no referral benefit in effect:
// no referrer, feature disabled, or the benefit window has lapsed.
func (s *service) ActiveContext(ctx context.Context, buyerID uuid.UUID, at time.Time) (*Context, error) {
	if !s.enabled || buyerID == uuid.Nil {
		return nil, nil
	}
	referral, err := s.repo.FindByReferred(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if referral == nil {
		return nil, nil
	}
	if at.Sub(referral.ReferredAt) >= s.benefitDuration {
		return nil, nil
	}
	return &Context{
		ReferrerID:          referral.ReferrerID,
		ReferredID:          referral.ReferredID,
		DiscountPercent:     s.discountPercent,
		RevenueSharePercent: s.revenueSharePercent,
	}, nil
}

// RecordEarning appends the audit row inside the caller's transaction.
func (s *service) RecordEarning(ctx context.Context, tx *gorm.DB, snapshot Context, paymentID *uuid.UUID, shareAmountCents int) error {
	if snapshot.ReferrerID == uuid.Nil || snapshot.ReferredID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "referral snapshot is incomplete")
	}
	earning := &models.ReferralEarning{
		ReferrerID:                 snapshot.ReferrerID,
		ReferredID:                 snapshot.ReferredID,
		PaymentID:                  paymentID,
		DiscountPercentApplied:     snapshot.DiscountPercent,
		RevenueSharePercentApplied: snapshot.RevenueSharePercent,
		ShareAmountCents:           shareAmountCents,
	}
	return s.repo.WithTx(tx).CreateEarning(ctx, earning)
}

func (s *service) ListEarnings(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	if referrerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer id is required")
	}
	return s.repo.ListEarningsByReferrer(ctx, referrerID)
}
