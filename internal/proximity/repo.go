package proximity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages persistence for proximity payment handshakes. Every
// transition is a conditional UPDATE guarded on the current status; the
// pending-to-processing step additionally re-checks the deadline so an
// expired handshake can never be confirmed by a racing customer.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, pending *models.PendingPayment) error
	FindByID(ctx context.Context, pendingID uuid.UUID) (*models.PendingPayment, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.PendingPayment, error)
	ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PendingPayment, error)
	MarkProcessing(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error)
	MarkCompleted(ctx context.Context, pendingID, paymentID uuid.UUID, at time.Time) (int64, error)
	MarkFailed(ctx context.Context, pendingID uuid.UUID) (int64, error)
	MarkCancelled(ctx context.Context, pendingID uuid.UUID) (int64, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PendingPayment, error)
	MarkExpired(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a handshake repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, pending *models.PendingPayment) error {
	return r.db.WithContext(ctx).Create(pending).Error
}

func (r *repository) FindByID(ctx context.Context, pendingID uuid.UUID) (*models.PendingPayment, error) {
	var pending models.PendingPayment
	err := r.db.WithContext(ctx).Where("id = ?", pendingID).First(&pending).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pending, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	return r.list(ctx, "customer_id = ?", customerID, limit)
}

func (r *repository) ListByVendor(ctx context.Context, vendorID uuid.UUID, limit int) ([]models.PendingPayment, error) {
	return r.list(ctx, "vendor_id = ?", vendorID, limit)
}

func (r *repository) list(ctx context.Context, query string, arg any, limit int) ([]models.PendingPayment, error) {
	var rows []models.PendingPayment
	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkProcessing(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("id = ? AND status = ? AND expires_at > ?", pendingID, enums.PendingPaymentStatusPending, now).
		Update("status", enums.PendingPaymentStatusProcessing)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkCompleted(ctx context.Context, pendingID, paymentID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("id = ? AND status = ?", pendingID, enums.PendingPaymentStatusProcessing).
		Updates(map[string]any{
			"status":       enums.PendingPaymentStatusCompleted,
			"payment_id":   paymentID,
			"completed_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkFailed(ctx context.Context, pendingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("id = ? AND status = ?", pendingID, enums.PendingPaymentStatusProcessing).
		Update("status", enums.PendingPaymentStatusFailed)
	return result.RowsAffected, result.Error
}

func (r *repository) MarkCancelled(ctx context.Context, pendingID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("id = ? AND status = ?", pendingID, enums.PendingPaymentStatusPending).
		Update("status", enums.PendingPaymentStatusCancelled)
	return result.RowsAffected, result.Error
}

func (r *repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.PendingPayment, error) {
	var rows []models.PendingPayment
	if err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", enums.PendingPaymentStatusPending, now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) MarkExpired(ctx context.Context, pendingID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PendingPayment{}).
		Where("id = ? AND status = ? AND expires_at <= ?", pendingID, enums.PendingPaymentStatusPending, now).
		Update("status", enums.PendingPaymentStatusExpired)
	return result.RowsAffected, result.Error
}
