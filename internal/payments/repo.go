package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages persistence for the payment ledger. Status transitions
// are conditional UPDATEs guarded by the current status so racing writers
// cannot double-apply an outcome.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error)
	AttachIntent(ctx context.Context, paymentID uuid.UUID, intentID string) (int64, error)
	MarkCompleted(ctx context.Context, paymentID uuid.UUID, chargeRef string) (int64, error)
	MarkFailed(ctx context.Context, paymentID uuid.UUID) (int64, error)
	MarkRefunded(ctx context.Context, paymentID uuid.UUID) (int64, error)
	ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Payment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) FindByID(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", paymentID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIntentID(ctx context.Context, intentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("processor_intent_id = ?", intentID).First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// AttachIntent records the processor intent and moves pending → processing.
func (r *repository) AttachIntent(ctx context.Context, paymentID uuid.UUID, intentID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusPending).
		Updates(map[string]any{
			"processor_intent_id": intentID,
			"status":              enums.PaymentStatusProcessing,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkCompleted(ctx context.Context, paymentID uuid.UUID, chargeRef string) (int64, error) {
	updates := map[string]any{"status": enums.PaymentStatusCompleted}
	if chargeRef != "" {
		updates["processor_charge_ref"] = chargeRef
	}
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID, []enums.PaymentStatus{
			enums.PaymentStatusPending,
			enums.PaymentStatusProcessing,
		}).
		Updates(updates)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkFailed(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", paymentID, []enums.PaymentStatus{
			enums.PaymentStatusPending,
			enums.PaymentStatusProcessing,
		}).
		Updates(map[string]any{
			"status":    enums.PaymentStatusFailed,
			"failed_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkRefunded(ctx context.Context, paymentID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, enums.PaymentStatusCompleted).
		Updates(map[string]any{
			"status":      enums.PaymentStatusRefunded,
			"refunded_at": time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}

func (r *repository) ListByPayer(ctx context.Context, payerID uuid.UUID, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("payer_id = ?", payerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}
