package referrals

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
)

// Repository manages persistence for referrals and their earning audit rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, referral *models.Referral) error
	FindByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error)
	CreateEarning(ctx context.Context, earning *models.ReferralEarning) error
	ListEarningsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a referral repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, referral *models.Referral) error {
	return r.db.WithContext(ctx).Create(referral).Error
}

func (r *repository) FindByReferred(ctx context.Context, referredID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	err := r.db.WithContext(ctx).
		Where("referred_id = ?", referredID).
		First(&referral).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

func (r *repository) CreateEarning(ctx context.Context, earning *models.ReferralEarning) error {
	return r.db.WithContext(ctx).Create(earning).Error
}

func (r *repository) ListEarningsByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEarning, error) {
	var earnings []models.ReferralEarning
	if err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Find(&earnings).Error; err != nil {
		return nil, err
	}
	return earnings, nil
}
