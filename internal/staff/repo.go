package staff

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages event staff grants. The (event, user) pair is unique;
// concurrent grants for the same pair are decided by the index.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, grant *models.EventStaff) error
	Find(ctx context.Context, eventID, userID uuid.UUID) (*models.EventStaff, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EventStaff, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EventStaff, error)
	Revoke(ctx context.Context, eventID, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a staff repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, grant *models.EventStaff) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *repository) Find(ctx context.Context, eventID, userID uuid.UUID) (*models.EventStaff, error) {
	var grant models.EventStaff
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&grant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &grant, nil
}

func (r *repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.EventStaff, error) {
	var grants []models.EventStaff
	if err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.EventStaff, error) {
	var grants []models.EventStaff
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

func (r *repository) Revoke(ctx context.Context, eventID, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("event_id = ? AND user_id = ? AND role <> ?", eventID, userID, enums.StaffRoleOrganizer).
		Delete(&models.EventStaff{})
	return result.RowsAffected, result.Error
}
