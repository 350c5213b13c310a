package offers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stagedoor/stagedoor-backend/pkg/db/models"
	"github.com/stagedoor/stagedoor-backend/pkg/enums"
)

// Repository manages persistence for favor ticket offers. Resolving
// transitions are conditional UPDATEs guarded on pending status; the accept
// path additionally re-checks the deadline inside the UPDATE so an expired
// row can never be resolved by a racing accept.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, offer *models.TicketOffer) error
	FindByID(ctx context.Context, offerID uuid.UUID) (*models.TicketOffer, error)
	ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketOffer, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.TicketOffer, error)
	PendingUnlinkedByEmail(ctx context.Context, email string) ([]models.TicketOffer, error)
	LinkRecipient(ctx context.Context, offerID, recipientID uuid.UUID) (int64, error)
	Accept(ctx context.Context, offerID, ticketID uuid.UUID, now time.Time) (int64, error)
	MarkDeclined(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error)
	MarkCancelled(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an offer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, offer *models.TicketOffer) error {
	return r.db.WithContext(ctx).Create(offer).Error
}

func (r *repository) FindByID(ctx context.Context, offerID uuid.UUID) (*models.TicketOffer, error) {
	var offer models.TicketOffer
	err := r.db.WithContext(ctx).Where("id = ?", offerID).First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}

func (r *repository) ListByOrganizer(ctx context.Context, organizerID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	return r.list(ctx, "organizer_id = ?", organizerID, limit)
}

func (r *repository) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]models.TicketOffer, error) {
	return r.list(ctx, "recipient_id = ?", recipientID, limit)
}

func (r *repository) list(ctx context.Context, query string, arg any, limit int) ([]models.TicketOffer, error) {
	var offers []models.TicketOffer
	if err := r.db.WithContext(ctx).
		Where(query, arg).
		Order("created_at DESC").
		Limit(limit).
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) PendingUnlinkedByEmail(ctx context.Context, email string) ([]models.TicketOffer, error) {
	var offers []models.TicketOffer
	if err := r.db.WithContext(ctx).
		Where("recipient_email = ? AND recipient_id IS NULL AND status = ?", email, enums.OfferStatusPending).
		Order("created_at ASC").
		Find(&offers).Error; err != nil {
		return nil, err
	}
	return offers, nil
}

func (r *repository) LinkRecipient(ctx context.Context, offerID, recipientID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketOffer{}).
		Where("id = ? AND recipient_id IS NULL AND status = ?", offerID, enums.OfferStatusPending).
		Update("recipient_id", recipientID)
	return result.RowsAffected, result.Error
}

func (r *repository) Accept(ctx context.Context, offerID, ticketID uuid.UUID, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketOffer{}).
		Where("id = ? AND status = ? AND expires_at > ?", offerID, enums.OfferStatusPending, now).
		Updates(map[string]any{
			"status":      enums.OfferStatusAccepted,
			"ticket_id":   ticketID,
			"resolved_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkDeclined(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error) {
	return r.resolve(ctx, offerID, enums.OfferStatusDeclined, at)
}

func (r *repository) MarkCancelled(ctx context.Context, offerID uuid.UUID, at time.Time) (int64, error) {
	return r.resolve(ctx, offerID, enums.OfferStatusCancelled, at)
}

func (r *repository) resolve(ctx context.Context, offerID uuid.UUID, status enums.OfferStatus, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketOffer{}).
		Where("id = ? AND status = ?", offerID, enums.OfferStatusPending).
		Updates(map[string]any{
			"status":      status,
			"resolved_at": at,
		})
	return result.RowsAffected, result.Error
}

// SweepExpired is idempotent: rerunning it only ever touches rows still
// pending past their deadline.
func (r *repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.TicketOffer{}).
		Where("status = ? AND expires_at <= ?", enums.OfferStatusPending, now).
		Updates(map[string]any{
			"status":      enums.OfferStatusExpired,
			"resolved_at": now,
		})
	return result.RowsAffected, result.Error
}
